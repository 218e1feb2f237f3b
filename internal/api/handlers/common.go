package handlers

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"beskarliquidator/internal/domain"
)

var json_ = jsoniter.ConfigCompatibleWithStandardLibrary

// errorBody is the JSON shape returned for every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json_.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{Error: err.Error(), Kind: kind.String()})
}

// statusForKind maps the domain error taxonomy onto the HTTP status codes
// the external interface promises: validation and conflicts are always
// 4xx, and the core never retries them.
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindDuplicate, domain.KindAlreadyExists, domain.KindStateConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindBorrowerMismatch, domain.KindTerminal:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json_.NewDecoder(r.Body).Decode(dst)
}
