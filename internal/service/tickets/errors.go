package tickets

import "errors"

var (
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrTicketAlreadyScanned  = errors.New("ticket already scanned")
	ErrTicketInvalid         = errors.New("ticket is not valid")
	ErrTicketNotTransferable = errors.New("ticket not transferable")
	ErrCodesExhausted        = errors.New("unique code space exhausted for product")
	ErrOwnerRequired         = errors.New("order has no owner")
)
