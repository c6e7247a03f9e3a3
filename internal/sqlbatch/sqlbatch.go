// Package sqlbatch coalesces queued single-row write requests into one
// multi-row statement so a batch costs one round trip instead of N.
package sqlbatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WriteRequest is one queued write: a statement template with positional
// placeholders and the values bound to them. This is the wire format on the
// metadata queue.
type WriteRequest struct {
	Text   string `json:"text"`
	Values []any  `json:"values"`
}

// ParseError reports a queue message that could not be decoded into a
// WriteRequest. It fails the containing batch; redelivery retries it.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse write request: %s: %v", e.Reason, e.Err)
	}
	return "parse write request: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a message body into a WriteRequest. Integral JSON numbers
// come back as int64 so integer columns round-trip through the queue
// without becoming floats.
func Parse(body []byte) (WriteRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var req WriteRequest
	if err := dec.Decode(&req); err != nil {
		return WriteRequest{}, &ParseError{Reason: "invalid json", Err: err}
	}
	if strings.TrimSpace(req.Text) == "" {
		return WriteRequest{}, &ParseError{Reason: "empty statement"}
	}
	if len(req.Values) == 0 {
		return WriteRequest{}, &ParseError{Reason: "no values"}
	}

	for i, v := range req.Values {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if n, err := num.Int64(); err == nil {
			req.Values[i] = n
		} else if f, err := num.Float64(); err == nil {
			req.Values[i] = f
		}
	}
	return req, nil
}

// Compose rewrites a batch of single-row requests sharing one statement
// template into a single multi-row statement. For R requests of C columns,
// request r (0-based) column c binds placeholder $(r*C + c + 1) and the
// flattened value list follows the same order. Only the first request's
// template and column count are consulted; the batch is assumed uniform.
func Compose(reqs []WriteRequest) (WriteRequest, error) {
	if len(reqs) == 0 {
		return WriteRequest{}, fmt.Errorf("compose: empty batch")
	}
	cols := len(reqs[0].Values)
	if cols == 0 {
		return WriteRequest{}, fmt.Errorf("compose: first request has no values")
	}

	head, tail, err := splitValuesClause(reqs[0].Text)
	if err != nil {
		return WriteRequest{}, err
	}

	var groups strings.Builder
	flat := make([]any, 0, len(reqs)*cols)
	next := 1
	for r, req := range reqs {
		if r > 0 {
			groups.WriteString(", ")
		}
		groups.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				groups.WriteString(", ")
			}
			groups.WriteByte('$')
			groups.WriteString(strconv.Itoa(next))
			next++
		}
		groups.WriteByte(')')
		flat = append(flat, req.Values...)
	}

	return WriteRequest{
		Text:   head + groups.String() + tail,
		Values: flat,
	}, nil
}

// splitValuesClause splits a statement around its parenthesized VALUES
// group. head ends just past "VALUES ", tail starts after the matching
// close paren (keeping trailing clauses such as ON CONFLICT).
func splitValuesClause(stmt string) (head, tail string, err error) {
	upper := strings.ToUpper(stmt)
	idx := strings.Index(upper, "VALUES")
	if idx < 0 {
		return "", "", fmt.Errorf("compose: no values clause in %q", stmt)
	}

	pos := idx + len("VALUES")
	for pos < len(stmt) && stmt[pos] == ' ' {
		pos++
	}
	if pos >= len(stmt) || stmt[pos] != '(' {
		return "", "", fmt.Errorf("compose: malformed values clause in %q", stmt)
	}

	depth := 0
	for i := pos; i < len(stmt); i++ {
		switch stmt[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return stmt[:idx+len("VALUES")] + " ", stmt[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("compose: unbalanced values clause in %q", stmt)
}
