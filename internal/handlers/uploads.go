package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

const (
	// maxImageBytes caps every uploaded image.
	maxImageBytes = 10 << 20
	// maxFormMemory is how much of a multipart body is buffered in memory
	// before the rest spills to temporary files.
	maxFormMemory = 8 << 20
	// formOverhead leaves room for the text fields next to the files.
	formOverhead = 1 << 20
)

var errImageTooLarge = fmt.Errorf("image exceeds %d MiB", maxImageBytes>>20)

// parseMultipart limits the body to files images plus form fields and
// parses it. The returned error is safe to show to the client.
func parseMultipart(w http.ResponseWriter, r *http.Request, files int) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(files)*maxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errImageTooLarge
		}
		return errors.New("expected a multipart/form-data body")
	}
	return nil
}

// uploads returns the files sent under field.
func uploads(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

// readUpload reads one file, enforcing maxImageBytes even when the
// declared size lies.
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxImageBytes {
		return nil, errImageTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, errImageTooLarge
	}
	return data, nil
}

func formInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// formFloat returns nil for an absent field.
func formFloat(r *http.Request, key string) (*float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &f, nil
}
