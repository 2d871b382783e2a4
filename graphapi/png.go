package graphapi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// MaxTextChunkSize bounds the tEXt chunks GetPngMetadata reads into memory
const MaxTextChunkSize = 16 << 20

// ErrChunkTooLarge is returned for tEXt chunks larger than MaxTextChunkSize
var ErrChunkTooLarge = errors.New("png text chunk too large")

// GetPngMetadata returns the tEXt chunks of a PNG keyed by keyword.
// ComfyUI stores the API-format workflow under "prompt" and the UI graph under "workflow".
// Other chunks are skipped without being buffered.
func GetPngMetadata(r io.Reader) (map[string]string, error) {
	header := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading png signature: %w", err)
	}
	if !bytes.Equal(header, pngSignature) {
		return nil, errors.New("not a valid PNG file")
	}

	txtChunks := make(map[string]string)
	// length (4) + type (4)
	chunkHeader := make([]byte, 8)
	for {
		_, err := io.ReadFull(r, chunkHeader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading png chunk: %w", err)
		}
		length := binary.BigEndian.Uint32(chunkHeader[:4])
		chunkType := string(chunkHeader[4:])

		if chunkType == "tEXt" {
			if length > MaxTextChunkSize {
				return nil, fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, length)
			}
			keyword, text, err := readTextChunk(r, length)
			if err != nil {
				return nil, err
			}
			txtChunks[keyword] = text
		} else if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, fmt.Errorf("skipping %s chunk: %w", chunkType, err)
		}

		// CRC
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, fmt.Errorf("reading %s crc: %w", chunkType, err)
		}
		if chunkType == "IEND" {
			break
		}
	}
	return txtChunks, nil
}

// readTextChunk reads a tEXt payload: a keyword, a NUL separator and the text
func readTextChunk(r io.Reader, length uint32) (string, string, error) {
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", "", fmt.Errorf("reading tEXt chunk: %w", err)
	}
	keyword, text, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return "", "", errors.New("malformed tEXt chunk")
	}
	return string(keyword), string(text), nil
}

// NewWorkflowFromPNGReader extracts the API-format workflow ComfyUI embeds in the images it saves
func NewWorkflowFromPNGReader(r io.Reader) (*Workflow, error) {
	metadata, err := GetPngMetadata(r)
	if err != nil {
		return nil, err
	}

	prompt, ok := metadata["prompt"]
	if !ok {
		return nil, errors.New("png does not contain prompt metadata")
	}
	return NewWorkflowFromJsonReader(strings.NewReader(prompt))
}

func NewWorkflowFromPNGFile(path string) (*Workflow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return NewWorkflowFromPNGReader(file)
}

// NewWorkflowFromFile picks the loader by extension: .png files are read for their
// embedded prompt, everything else is treated as API-format JSON.
func NewWorkflowFromFile(path string) (*Workflow, error) {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return NewWorkflowFromPNGFile(path)
	}
	return NewWorkflowFromJsonFile(path)
}

