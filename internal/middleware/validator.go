package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/xerrors"
)

// A single validator instance is used, because it caches struct parsing.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Response is the JSON body of every non-ingest error.
type Response struct {
	Message string  `json:"message"`
	Errors  []Error `json:"errors,omitempty"`
}

// Error is one rejected input field.
type Error struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Response{Message: msg})
}

// Read decodes a JSON body into v and validates it. On failure the 400
// response has already been written and false is returned.
func Read(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("read body: %s", err.Error()))
		return false
	}
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if xerrors.As(err, &verrs) {
		out := make([]Error, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, Error{
				Field:  fe.Field(),
				Detail: fmt.Sprintf("validation failed for tag %q with value %q", fe.Tag(), fmt.Sprint(fe.Value())),
			})
		}
		WriteJSON(w, http.StatusBadRequest, Response{Message: "validation failed", Errors: out})
		return false
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("validation: %s", err.Error()))
		return false
	}
	return true
}

// QueryInt reads an optional integer query parameter.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, xerrors.Errorf("query parameter %q must be an integer", key)
	}
	return n, nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
