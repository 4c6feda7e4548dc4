// Package httperr maps controller errors onto HTTP responses.
package httperr

import (
	"net/http"

	chatService "github.com/zhouzirui/aichat/internal/service/chat"
	"github.com/zhouzirui/aichat/pkg/utils"
)

// Status returns the HTTP status for an error kind.
func Status(kind chatService.ErrorKind) int {
	switch kind {
	case chatService.KindNotFound:
		return http.StatusNotFound
	case chatService.KindCorruptRecord:
		return http.StatusUnprocessableEntity
	case chatService.KindBusy:
		return http.StatusConflict
	case chatService.KindEmptyInput, chatService.KindInvalidRole, chatService.KindInvalidMessage:
		return http.StatusBadRequest
	case chatService.KindTransport, chatService.KindRemoteAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as {"error","kind"} with the matching status.
func Respond(w http.ResponseWriter, err error) {
	kind := chatService.ClassifyError(err)
	utils.RespondErrorKind(w, Status(kind), string(kind), err.Error())
}
