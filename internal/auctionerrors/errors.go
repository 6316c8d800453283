package auctionerrors

import "errors"

// Lifecycle errors
var (
	ErrAuctionEnded       = errors.New("auction ended")
	ErrAuctionStillActive = errors.New("auction still active")
	ErrAlreadySettled     = errors.New("auction already settled")
)

// Validation and ledger errors
var (
	ErrInvalidProof        = errors.New("invalid proof")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTooManyBids         = errors.New("bid capacity exhausted")
)

// Registry errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
)
