package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-chat-be/internal/constant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":   constant.AttachmentKindImage,
		"scan.jpeg":   constant.AttachmentKindImage,
		"report.pdf":  constant.AttachmentKindPDF,
		"memo.docx":   constant.AttachmentKindDoc,
		"data.csv":    constant.AttachmentKindCSV,
		"notes.txt":   constant.AttachmentKindTxt,
		"mystery.bin": constant.AttachmentKindTxt,
	}
	for filename, want := range cases {
		assert.Equal(t, want, KindOf(filename), filename)
	}
}

func TestUploadStoresAndBuildsCDNUrl(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "pub-key", r.FormValue("UPLOADCARE_PUB_KEY"))
		assert.Equal(t, "1", r.FormValue("UPLOADCARE_STORE"))

		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", header.Filename)

		w.Write([]byte(`{"file":"abc-123"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "https://cdn.example.com", "pub-key")
	uploaded, err := c.Upload(context.Background(), "notes.txt", []byte("remember the milk"))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/abc-123/", uploaded.Url)
	assert.Equal(t, constant.AttachmentKindTxt, uploaded.Kind)
	assert.Equal(t, "remember the milk", uploaded.TextContent)
}

func TestUploadErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "pub-key")
	_, err := c.Upload(context.Background(), "big.txt", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "413")
}

func TestExtractTextDegradation(t *testing.T) {
	// A corrupt PDF must not fail the upload; extraction yields nothing.
	assert.Equal(t, "", ExtractText("broken.pdf", []byte("not a pdf"), constant.AttachmentKindPDF))

	assert.Equal(t, "CSV Data:\na,b\n1,2", ExtractText("d.csv", []byte("a,b\n1,2"), constant.AttachmentKindCSV))
	assert.Equal(t, "[Attached document: memo.docx]", ExtractText("memo.docx", []byte{0x50}, constant.AttachmentKindDoc))
	assert.Equal(t, "", ExtractText("pic.png", []byte{0x89}, constant.AttachmentKindImage))
}
