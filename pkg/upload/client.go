package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"ai-chat-be/internal/constant"

	"github.com/ledongthuc/pdf"
)

// Uploaded describes a file stored on the CDN.
type Uploaded struct {
	Url  string
	Name string
	Kind string
	// TextContent holds extracted document text for non-image files.
	// Empty when extraction failed or does not apply.
	TextContent string
}

// Client uploads files to an Uploadcare-compatible CDN and extracts text
// from document attachments so they can be fed to the model.
type Client struct {
	baseURL   string
	cdnPrefix string
	publicKey string
	client    *http.Client
}

func NewClient(baseURL, cdnPrefix, publicKey string) *Client {
	if baseURL == "" {
		baseURL = "https://upload.uploadcare.com"
	}
	if cdnPrefix == "" {
		cdnPrefix = "https://ucarecdn.com"
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		cdnPrefix: strings.TrimSuffix(cdnPrefix, "/"),
		publicKey: publicKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// KindOf classifies a filename into an attachment kind.
func KindOf(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return constant.AttachmentKindImage
	case ".pdf":
		return constant.AttachmentKindPDF
	case ".doc", ".docx":
		return constant.AttachmentKindDoc
	case ".csv":
		return constant.AttachmentKindCSV
	default:
		return constant.AttachmentKindTxt
	}
}

// Upload stores the file on the CDN and extracts its text when it is a
// document. Extraction failures degrade to an empty TextContent; only the
// upload itself can fail the call.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (*Uploaded, error) {
	fileId, err := c.store(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	kind := KindOf(filename)
	return &Uploaded{
		Url:         fmt.Sprintf("%s/%s/", c.cdnPrefix, fileId),
		Name:        filename,
		Kind:        kind,
		TextContent: ExtractText(filename, data, kind),
	}, nil
}

type storeResponse struct {
	File string `json:"file"`
}

func (c *Client) store(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("UPLOADCARE_PUB_KEY", c.publicKey); err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.WriteField("UPLOADCARE_STORE", "1"); err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/base/", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload api error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var stored storeResponse
	if err := json.Unmarshal(bodyBytes, &stored); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if stored.File == "" {
		return "", fmt.Errorf("upload api returned no file id")
	}
	return stored.File, nil
}

// ExtractText pulls readable text out of a document so it can be inlined
// into the model prompt. Images yield nothing; unknown or broken files
// degrade to an empty string.
func ExtractText(filename string, data []byte, kind string) string {
	switch kind {
	case constant.AttachmentKindPDF:
		return extractPDF(data)
	case constant.AttachmentKindCSV:
		return "CSV Data:\n" + string(data)
	case constant.AttachmentKindTxt:
		return string(data)
	case constant.AttachmentKindDoc:
		// Word documents are binary containers; without a parser we at
		// least tell the model what was attached.
		return fmt.Sprintf("[Attached document: %s]", filename)
	default:
		return ""
	}
}

func extractPDF(data []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
