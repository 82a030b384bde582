package models

import "errors"

var ErrPaymentImmutable = errors.New("payments are immutable once recorded")
