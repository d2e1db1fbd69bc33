package internal

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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Falco0906/syncstream/internal/room"
)

var (
	httpTimeout   = 5 * time.Second
	uploadTimeout = 30 * time.Minute

	errRoomNotFound = errors.New("room not found")
)

func apiCreateRoom(ctx context.Context, baseURL string) (createRoomResponse, error) {
	var resp createRoomResponse
	err := doJSONRequest(ctx, http.MethodGet, baseURL+"/api/create-room", nil, &resp)
	return resp, err
}

// apiRoomInfo probes a room. It returns errRoomNotFound on 404.
func apiRoomInfo(ctx context.Context, baseURL, roomID string) (room.Info, error) {
	var info room.Info
	err := doJSONRequest(ctx, http.MethodGet, baseURL+"/api/rooms/"+url.PathEscape(roomID), nil, &info)
	return info, err
}

// apiUploadVideo streams a local file to /upload as multipart form data.
func apiUploadVideo(ctx context.Context, baseURL, path, roomID, displayName string) (uploadResponse, error) {
	var out uploadResponse
	file, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer file.Close()

	contentType := videoContentType(path)
	if contentType == "" {
		return out, fmt.Errorf("%s is not a video file", filepath.Base(path))
	}

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		err := writeUploadForm(form, file, filepath.Base(path), contentType, roomID, displayName)
		writer.CloseWithError(err)
	}()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/upload", body)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := decodeResponse(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

func writeUploadForm(form *multipart.Writer, src io.Reader, filename, contentType, roomID, displayName string) error {
	if err := form.WriteField("roomId", roomID); err != nil {
		return err
	}
	if err := form.WriteField("displayName", displayName); err != nil {
		return err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return form.Close()
}

func doJSONRequest(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode == http.StatusNotFound {
		return errRoomNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// httpBaseFromWSURL turns ws(s)://host/ws into http(s)://host.
func httpBaseFromWSURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}

// resolveMediaURL makes a server-relative video URL absolute.
func resolveMediaURL(baseURL, videoURL string) string {
	if strings.HasPrefix(videoURL, "/") {
		return strings.TrimRight(baseURL, "/") + videoURL
	}
	return videoURL
}
