package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  jd_id  ", Value: "  42  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "jd_id" || fields[0].String != "42" {
		t.Fatalf("unexpected field: %+v", fields[0])
	}

	if empty := StringFields(); len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if ctx := entries[0].ContextMap(); ctx["foo"] != "bar" {
		t.Fatalf("expected field to be bar, got %q", ctx["foo"])
	}

	enriched = WithFields(nil, zap.String("baz", "qux"))
	if enriched == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}

	enriched.Info("another log")
}

func TestPipelineFieldsSkipsMissingIDs(t *testing.T) {
	fields := PipelineFields("run-1", "jd_to_resumes", "42", "")
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}

	if fields[0].Key != FieldPipeline || fields[0].String != "run-1" {
		t.Fatalf("unexpected pipeline field: %+v", fields[0])
	}
	if fields[2].Key != FieldJD || fields[2].String != "42" {
		t.Fatalf("unexpected jd field: %+v", fields[2])
	}
}

func TestWithPipelineFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	enriched := WithPipelineFields(zap.New(core), "run-2", "resume_to_jds", "", "7")
	enriched.Info("pipeline started")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldResume] != "7" {
		t.Fatalf("expected resume field 7, got %q", ctx[FieldResume])
	}
	if _, ok := ctx[FieldJD]; ok {
		t.Fatalf("did not expect jd field for a resume pipeline")
	}

	if WithPipelineFields(nil, "run-3", "", "", "") == nil {
		t.Fatalf("expected fallback logger when nil provided")
	}
}
