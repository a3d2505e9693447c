// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package gridfs

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/go-core-stack/mongoriver/oplog"
	"github.com/go-core-stack/mongoriver/source"
)

type fakeCollection struct {
	source.Collection
	file *source.GridFSFile
	data []byte
}

func (f *fakeCollection) GridFSOpen(ctx context.Context, id interface{}) (*source.GridFSFile, io.ReadCloser, error) {
	return f.file, io.NopCloser(bytes.NewReader(f.data)), nil
}

func Test_Fetcher_FetchBuildsAttachment(t *testing.T) {
	col := &fakeCollection{
		file: &source.GridFSFile{
			Filename:    "report.pdf",
			ContentType: "application/pdf",
			MD5:         "abc123",
			Length:      11,
			ChunkSize:   1024,
		},
		data: []byte("hello world"),
	}

	f := NewFetcher(1<<20, 1<<20)
	att, err := f.Fetch(context.Background(), col, "db.coll.files", "file-id")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if string(att.Content) != "hello world" {
		t.Errorf("expected content to round-trip, got %q", att.Content)
	}
	if att.Filename != "report.pdf" || att.ContentType != "application/pdf" || att.MD5 != "abc123" {
		t.Errorf("expected metadata to be carried through, got %+v", att)
	}
}

func Test_EncodeEnvelope(t *testing.T) {
	att := &oplog.Attachment{
		Content:     []byte("hello"),
		Filename:    "f.txt",
		ContentType: "text/plain",
		MD5:         "deadbeef",
		Length:      5,
		ChunkSize:   256,
	}
	env := EncodeEnvelope(att)

	want := map[string]interface{}{
		"content":     "aGVsbG8=",
		"filename":    "f.txt",
		"contentType": "text/plain",
		"md5":         "deadbeef",
		"length":      int64(5),
		"chunkSize":   int64(256),
	}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("expected envelope %+v, got %+v", want, env)
	}
}
