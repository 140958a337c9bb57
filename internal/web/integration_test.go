package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/card-scanner/internal/extraction"
	"github.com/zombor/card-scanner/internal/prefs"
	"github.com/zombor/card-scanner/internal/scan"
	"github.com/zombor/card-scanner/internal/sheets"
	"github.com/zombor/card-scanner/internal/web"
)

// MockModel answers every prompt with a fixed reply
type MockModel struct {
	reply    string
	mimeType string
}

func (m *MockModel) Generate(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	m.mimeType = mimeType
	return m.reply, nil
}

func (m *MockModel) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir     string
		dbPath      string
		capturePath string
		store       *prefs.BoltStore
		captures    *scan.DiskCaptures
		model       *MockModel
		server      *web.Server
		ghServer    *ghttp.Server
		webhook     *ghttp.Server
		err         error
	)

	BeforeEach(func() {
		tempDir, err = os.MkdirTemp("", "card-scanner-test-*")
		Expect(err).NotTo(HaveOccurred())

		dbPath = filepath.Join(tempDir, "prefs.db")
		capturePath = filepath.Join(tempDir, "captures")

		store, err = prefs.NewBoltStore(dbPath)
		Expect(err).NotTo(HaveOccurred())

		captures, err = scan.NewDiskCaptures(capturePath)
		Expect(err).NotTo(HaveOccurred())

		model = &MockModel{reply: "```json\n" +
			`{"name":"Ada Lovelace","job_title":"Analyst","company":"Analytical Engines Ltd","email":"ada@example.com","phone":null,"website":null,"address":null}` +
			"\n```"}

		orch := scan.New(store,
			extraction.New(model, extraction.WithAttempts(1)),
			sheets.NewClient(),
			scan.WithCaptures(captures),
		)
		server = web.NewServer(orch, captures, web.BasicAuth{})

		ghServer = ghttp.NewServer()
		webhook = ghttp.NewServer()
	})

	AfterEach(func() {
		ghServer.Close()
		webhook.Close()
		if store != nil {
			store.Close()
		}
		os.RemoveAll(tempDir)
	})

	do := func(method, path, contentType string, body *bytes.Buffer) scan.Snapshot {
		if body == nil {
			body = &bytes.Buffer{}
		}
		req, err := http.NewRequest(method, ghServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var snap scan.Snapshot
		Expect(json.NewDecoder(resp.Body).Decode(&snap)).To(Succeed())
		return snap
	}

	It("scans a card and appends it to the sheet", func() {
		ghServer.AppendHandlers(
			server.ServeHTTP, // set webhook
			server.ServeHTTP, // start
			server.ServeHTTP, // capture
			server.ServeHTTP, // save
		)
		webhook.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/macros/s/abc/exec"),
			ghttp.VerifyContentType("application/json"),
			func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get(sheets.RequestIDHeader)).NotTo(BeEmpty())
			},
			ghttp.VerifyJSON(`{"name":"Ada Lovelace","job_title":"Analyst","company":"Analytical Engines Ltd","email":"ada@example.com","phone":null,"website":null,"address":null}`),
			ghttp.RespondWith(http.StatusOK, `{"result":"success"}`),
		))

		// --- Step 1: configure the webhook ---
		url := webhook.URL() + "/macros/s/abc/exec"
		payload, err := json.Marshal(map[string]string{"url": url})
		Expect(err).NotTo(HaveOccurred())
		snap := do(http.MethodPut, "/api/settings/webhook", "application/json", bytes.NewBuffer(payload))
		Expect(snap.WebhookURL).To(Equal(url))

		// --- Step 2: open the camera ---
		snap = do(http.MethodPost, "/api/scan/start", "", nil)
		Expect(snap.Screen).To(Equal(scan.Camera))

		// --- Step 3: upload a photo ---
		var photo bytes.Buffer
		Expect(jpeg.Encode(&photo, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil)).To(Succeed())

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("image", "card.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(photo.Bytes())
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		snap = do(http.MethodPost, "/api/scan/capture", writer.FormDataContentType(), body)
		Expect(snap.Screen).To(Equal(scan.Result))
		Expect(*snap.Record.Email).To(Equal("ada@example.com"))
		Expect(snap.Record.Phone).To(BeNil())
		Expect(snap.Fields[4].Value).To(Equal("N/A"))
		Expect(model.mimeType).To(Equal("image/jpeg"))

		// The capture is gone once extraction is done
		entries, err := os.ReadDir(capturePath)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())

		// --- Step 4: save ---
		snap = do(http.MethodPost, "/api/scan/save", "", nil)
		Expect(snap.Screen).To(Equal(scan.Home))
		Expect(snap.Alert.Title).To(Equal("Success"))
		Expect(webhook.ReceivedRequests()).To(HaveLen(1))

		// The URL survives a restart
		Expect(store.Close()).To(Succeed())
		reopened, err := prefs.NewBoltStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		store = reopened
		Expect(store.Get()).To(Equal(url))
	})
})
