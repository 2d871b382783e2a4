package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

type ImageType string

const (
	InputImageType  ImageType = "input"
	TempImageType   ImageType = "temp"
	OutputImageType ImageType = "output"
)

// UploadFileFromReader posts the contents of r to /upload/image. The returned
// name is the one chosen by the server and is what a LoadImage input expects.
func (c *ComfyClient) UploadFileFromReader(ctx context.Context, r io.Reader, filename string, overwrite bool, filetype ImageType, subfolder string) (*UploadedFile, error) {
	// Create a buffer to store the request body
	var requestBody bytes.Buffer

	// Create a multipart writer to wrap the file (like FormData)
	writer := multipart.NewWriter(&requestBody)

	formFile, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(formFile, r); err != nil {
		return nil, err
	}

	_ = writer.WriteField("overwrite", strconv.FormatBool(overwrite))
	_ = writer.WriteField("type", string(filetype))
	if subfolder != "" {
		_ = writer.WriteField("subfolder", subfolder)
	}

	// Close the writer to finalize the body content
	if err := writer.Close(); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/upload/image", nil, writer.FormDataContentType(), &requestBody)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(http.MethodPost, "/upload/image", resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	uploaded := &UploadedFile{}
	if err := json.NewDecoder(resp.Body).Decode(uploaded); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	if uploaded.Name == "" {
		return nil, fmt.Errorf("invalid upload response for %s: missing name", filename)
	}
	return uploaded, nil
}

func (c *ComfyClient) UploadFileFromPath(ctx context.Context, filePath string, overwrite bool, filetype ImageType, subfolder string) (*UploadedFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return c.UploadFileFromReader(ctx, file, filepath.Base(filePath), overwrite, filetype, subfolder)
}

// UploadImage encodes img as PNG and uploads it
func (c *ComfyClient) UploadImage(ctx context.Context, img image.Image, filename string, overwrite bool, filetype ImageType, subfolder string) (*UploadedFile, error) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return nil, err
	}
	return c.UploadFileFromReader(ctx, &buffer, filepath.Base(filename), overwrite, filetype, subfolder)
}
