package ipc

import "fmt"

// NewRequest builds the wire envelope of a method call.
func NewRequest(method string, data Document) Document {
	if data == nil {
		data = Document{}
	}
	return Document{"method": method, "data": data}
}

// ParseRequest splits a wire envelope into method name and data.
func ParseRequest(doc Document) (string, Document, error) {
	if err := ExpectField(doc, "method", KindString); err != nil {
		return "", nil, err
	}
	if err := OptionalField(doc, "data", KindObject); err != nil {
		return "", nil, err
	}

	method, _ := doc.String("method")
	data, ok := doc.Object("data")
	if !ok {
		data = Document{}
	}
	return method, data, nil
}

// ResponseError returns an error for error envelopes and nil otherwise.
func ResponseError(doc Document) error {
	if doc.IsError() {
		return fmt.Errorf("server error: %s", doc.ErrorMessage())
	}
	return nil
}
