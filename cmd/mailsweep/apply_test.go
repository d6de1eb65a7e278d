package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/joshsymonds/mailsweep/internal/plan"
	"github.com/joshsymonds/mailsweep/internal/pipeline"
)

func decodeAll(t *testing.T, buf *bytes.Buffer) []pipeline.Result {
	t.Helper()
	dec := json.NewDecoder(buf)
	var docs []pipeline.Result
	for {
		var res pipeline.Result
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			return docs
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		docs = append(docs, res)
	}
}

func TestRenderResultJSONIsSingleDocument(t *testing.T) {
	res := pipeline.Result{
		Planned:   2,
		Succeeded: 1,
		Failed:    1,
		Error:     "delete mutation: transport reset",
	}

	var buf bytes.Buffer
	if err := renderResult(&buf, res, plan.Plan{}, true); err != nil {
		t.Fatalf("render: %v", err)
	}

	docs := decodeAll(t, &buf)
	if len(docs) != 1 {
		t.Fatalf("expected one JSON document, got %d", len(docs))
	}
	if docs[0].Error != res.Error {
		t.Fatalf("error field missing from JSON output: %+v", docs[0])
	}
}

func TestRenderUndoResultJSONIsSingleDocument(t *testing.T) {
	res := pipeline.Result{
		Planned: 1,
		Failed:  1,
		Error:   "undo u1: rate limit",
	}

	var buf bytes.Buffer
	if err := renderUndoResult(&buf, res, true); err != nil {
		t.Fatalf("render: %v", err)
	}

	docs := decodeAll(t, &buf)
	if len(docs) != 1 {
		t.Fatalf("expected one JSON document, got %d", len(docs))
	}
	if docs[0].Error != res.Error {
		t.Fatalf("error field missing from JSON output: %+v", docs[0])
	}
}

func TestRenderResultHumanReportsError(t *testing.T) {
	res := pipeline.Result{Planned: 1, Failed: 1, Error: "archive pre-log: disk full"}

	var buf bytes.Buffer
	if err := renderResult(&buf, res, plan.Plan{}, false); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("error: archive pre-log: disk full")) {
		t.Fatalf("human output must surface the error:\n%s", buf.String())
	}
}
