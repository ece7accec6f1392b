package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ankabe/policyfaq/internal/ingest"
	"github.com/ankabe/policyfaq/internal/rag"
)

// fakeAnswerer implements answerer with canned responses.
type fakeAnswerer struct {
	answer  *rag.Answer
	events  []rag.Event
	err     error
	lastReq rag.Request
	calls   int
}

func (f *fakeAnswerer) Answer(_ context.Context, req rag.Request) (*rag.Answer, error) {
	f.lastReq = req
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeAnswerer) Stream(_ context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Answer, error) {
	f.lastReq = req
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, ev := range f.events {
		if err := emit(ev); err != nil {
			return nil, err
		}
	}
	return f.answer, nil
}

// fakeToucher implements toucher without a database.
type fakeToucher struct {
	mint uuid.UUID
	err  error
	idle time.Duration
}

func (f *fakeToucher) Touch(_ context.Context, id *uuid.UUID) (uuid.UUID, bool, error) {
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	if id != nil {
		return *id, false, nil
	}
	if f.mint == uuid.Nil {
		f.mint = uuid.New()
	}
	return f.mint, true, nil
}

func (f *fakeToucher) IdleThreshold() time.Duration {
	if f.idle == 0 {
		return 30 * time.Minute
	}
	return f.idle
}

// fakeIngestor implements ingestor and records the last call.
type fakeIngestor struct {
	result         *ingest.Result
	err            error
	lastCollection string
	lastMeta       ingest.Meta
	lastNames      []string
}

func (f *fakeIngestor) Ingest(_ context.Context, collection string, meta ingest.Meta, files []ingest.File) (*ingest.Result, error) {
	f.lastCollection = collection
	f.lastMeta = meta
	f.lastNames = f.lastNames[:0]
	for _, file := range files {
		f.lastNames = append(f.lastNames, file.Name)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
