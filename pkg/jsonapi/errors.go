package jsonapi

import "strconv"

func newError(status int, code, title, detail string) Error {
	return Error{Status: strconv.Itoa(status), Code: code, Title: title, Detail: detail}
}

// StatusCode returns Status as an int, or 0 when it is not a number.
func (e Error) StatusCode() int {
	n, _ := strconv.Atoi(e.Status)
	return n
}

// Forbidden is a 403 error for a denied operation.
func Forbidden(detail string) Error {
	if detail == "" {
		detail = "Access denied"
	}
	return newError(403, "forbidden", "Forbidden", detail)
}

// NotFound is a 404 error for a missing record.
func NotFound(detail string) Error {
	return newError(404, "not_found", "Not Found", detail)
}

// Invalid is a 422 error for a rejected attribute. field "base" or ""
// points at the whole resource.
func Invalid(field, detail string) Error {
	e := newError(422, "invalid", "Validation Failed", detail)
	e.Source = &ErrorSource{Pointer: "/data"}
	if field != "" && field != "base" {
		e.Source.Pointer += "/attributes/" + field
	}
	return e
}

// Internal is a 500 error carrying err's message.
func Internal(err error) Error {
	detail := "An internal error occurred"
	if err != nil {
		detail = err.Error()
	}
	return newError(500, "internal_error", "Internal Error", detail)
}
