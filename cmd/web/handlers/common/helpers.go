package common

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"
)

// DerefString safely dereferences a *string, returning "" if nil.
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseBool reads a form or query flag. Anything unparsable is false.
func ParseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

// OpenUpload opens an uploaded multipart file. A nil header yields a nil reader.
func OpenUpload(fh *multipart.FileHeader) (io.ReadCloser, string, error) {
	if fh == nil {
		return nil, "", nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	return f, fh.Filename, nil
}
