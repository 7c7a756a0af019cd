package response

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/beanbocchi/stowage/internal/model"
)

type CommonResponse struct {
	Data    any          `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   *model.Error `json:"error"`
}

func write(w http.ResponseWriter, status int, body any) error {
	data, err := sonic.Marshal(body)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

func FromDTO(w http.ResponseWriter, status int, data any) error {
	return write(w, status, CommonResponse{Data: data})
}

func FromMessage(w http.ResponseWriter, status int, message string) error {
	return write(w, status, CommonResponse{Message: message})
}

// FromError writes err as a coded error. Errors without a code are reported
// as internal errors so their text never reaches the client.
func FromError(w http.ResponseWriter, status int, err error) error {
	var coded model.Error
	if !errors.As(err, &coded) {
		coded = model.ErrInternal
	}
	return write(w, status, CommonResponse{Error: &coded})
}
