// response.go - Uniform JSON envelope and error-to-HTTP mapping.

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sealedbid/internal/auctionerrors"
	"sealedbid/internal/fhe"
)

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSONResponse writes a success envelope.
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, apiResponse{Status: "success", Message: message, Data: data})
}

// JSONError writes an error envelope.
func JSONError(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{Status: "error", Message: message})
}

// MapErrorToHTTP translates engine sentinel errors into HTTP statuses.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrInvalidProof):
		return http.StatusBadRequest, "invalid proof"
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrAuctionEnded):
		return http.StatusConflict, "auction ended"
	case errors.Is(err, auctionerrors.ErrAuctionStillActive):
		return http.StatusConflict, "auction still active"
	case errors.Is(err, auctionerrors.ErrAlreadySettled):
		return http.StatusConflict, "auction already settled"
	case errors.Is(err, auctionerrors.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient balance"
	case errors.Is(err, auctionerrors.ErrTooManyBids):
		return http.StatusConflict, "bid capacity exhausted"
	case errors.Is(err, fhe.ErrUnknownRecipient):
		return http.StatusBadRequest, "recipient has no registered disclosure key"
	case errors.Is(err, fhe.ErrUnknownDisclosure):
		return http.StatusNotFound, "disclosure request not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
