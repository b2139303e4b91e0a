// Package attachment converts user-supplied files into transport-safe
// attachment records.
package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/pkg/metrics"
)

// Input is one file selected for upload.
type Input struct {
	Name     string
	MIMEType string
	Size     int64
	Reader   io.Reader
}

// Encode converts a single file into an attachment. Images are read fully
// and inlined as a base64 data URI; every other type is recorded as metadata
// only so large files never bloat the request or storage payloads.
func Encode(ctx context.Context, in Input) (model.Attachment, error) {
	att := model.Attachment{
		ID:        uuid.NewString(),
		Name:      in.Name,
		MIMEType:  in.MIMEType,
		SizeBytes: in.Size,
	}

	if !strings.HasPrefix(in.MIMEType, "image/") {
		return att, nil
	}

	if err := ctx.Err(); err != nil {
		return model.Attachment{}, err
	}

	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to read %s: %w", in.Name, err)
	}

	if att.SizeBytes == 0 {
		att.SizeBytes = int64(len(data))
	}
	att.InlineData = "data:" + in.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return att, nil
}

// EncodeAll encodes a batch of files concurrently. The returned attachments
// preserve input order among the successes; a file whose bytes cannot be
// read is dropped and reported in the error slice rather than failing the
// batch.
func EncodeAll(ctx context.Context, inputs []Input) ([]model.Attachment, []error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	results := make([]model.Attachment, len(inputs))
	failures := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in Input) {
			defer wg.Done()
			results[i], failures[i] = Encode(ctx, in)
		}(i, in)
	}
	wg.Wait()

	attachments := make([]model.Attachment, 0, len(inputs))
	var errs []error
	for i := range inputs {
		if failures[i] != nil {
			metrics.AttachmentEncodeFailuresTotal.Inc()
			errs = append(errs, failures[i])
			continue
		}
		attachments = append(attachments, results[i])
	}
	return attachments, errs
}
