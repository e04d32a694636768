package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/huangsam/digitaldiary/internal/contract"
)

var (
	errNoAudio       = errors.New("no audio file provided")
	errAudioTooLarge = errors.New("audio file too large")
)

// readAudio collects the bytes of every file part of a multipart body.
// It stops with an error once more than maxAudioBytes have been seen.
func readAudio(req *http.Request) ([]byte, error) {
	reader, err := req.MultipartReader()
	if err != nil {
		return nil, errNoAudio
	}
	var buf bytes.Buffer
	found := false
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}
		found = true
		remaining := int64(maxAudioBytes - buf.Len() + 1)
		if _, err := io.Copy(&buf, io.LimitReader(part, remaining)); err != nil {
			return nil, fmt.Errorf("read audio: %w", err)
		}
		_ = part.Close()
		if buf.Len() > maxAudioBytes {
			return nil, errAudioTooLarge
		}
	}
	if !found || buf.Len() == 0 {
		return nil, errNoAudio
	}
	return buf.Bytes(), nil
}

// transcribe forwards audio to the transcription service.
func (s *Server) transcribe(ctx context.Context, audio []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audioFilename))
	header.Set("Content-Type", audioContentType)
	file, err := form.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(audio); err != nil {
		return "", err
	}
	for field, value := range map[string]string{"model": s.cfg.TranscribeModel, "language": audioLanguage} {
		if err := form.WriteField(field, value); err != nil {
			return "", err
		}
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TranscriptionURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.OpenAIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %d %s", errUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return out.Text, nil
}

func (s *Server) handleTranscribe(rw http.ResponseWriter, req *http.Request) {
	if s.cfg.OpenAIKey == "" {
		writeError(rw, http.StatusInternalServerError, "Server misconfigured: missing API key")
		return
	}

	audio, err := readAudio(req)
	switch {
	case errors.Is(err, errNoAudio):
		writeError(rw, http.StatusBadRequest, "No audio file provided")
		return
	case errors.Is(err, errAudioTooLarge):
		writeError(rw, http.StatusBadRequest, "Audio file too large (max 25MB)")
		return
	case err != nil:
		contract.LogWarn("Transcription error", err)
		writeError(rw, http.StatusInternalServerError, "Internal server error")
		return
	}

	text, err := s.transcribe(req.Context(), audio)
	if err != nil {
		writeUpstreamError(rw, "Transcription", "Transcription service", err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"text": text})
}
