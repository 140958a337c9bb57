package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	gemini "github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/zombor/card-scanner/internal/contact"
)

// mockModel is a mock implementation of Model
type mockModel struct {
	replies  []string
	errs     []error
	calls    int
	mimeType string
	image    []byte
	prompt   string
}

func (m *mockModel) Generate(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	i := m.calls
	m.calls++
	m.image, m.mimeType, m.prompt = image, mimeType, prompt
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return m.replies[len(m.replies)-1], nil
}

func (m *mockModel) Close() error {
	return nil
}

// httpCodeError mimics the generated client's API error
type httpCodeError int

func (e httpCodeError) Error() string { return fmt.Sprintf("status %d", int(e)) }
func (e httpCodeError) HTTPCode() int { return int(e) }

// finalError is an error that asks not to be retried
type finalError struct{}

func (finalError) Error() string   { return "invalid api key" }
func (finalError) Retryable() bool { return false }

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func writeFile(dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, data, 0644)).To(Succeed())
	return path
}

func jpegBytes() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

const cardJSON = `{"name":"Ada Lovelace","job_title":"Analyst","company":"Analytical Engines Ltd","email":"ada@example.com","phone":null,"website":null,"address":null}`

var _ = Describe("Client", func() {
	var (
		dir      string
		location string
		model    *mockModel
		client   *Client
		record   *contact.Record
		err      error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		location = writeFile(dir, "card.jpg", jpegBytes())
		model = &mockModel{replies: []string{cardJSON}}
		client = New(model, WithBackoff(time.Millisecond))
	})

	JustBeforeEach(func() {
		record, err = client.Extract(context.Background(), location)
	})

	When("the model returns a valid record", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the record", func() {
			Expect(*record.Name).To(Equal("Ada Lovelace"))
			Expect(record.Phone).To(BeNil())
		})

		It("should send the JPEG as-is with the card prompt", func() {
			Expect(model.mimeType).To(Equal("image/jpeg"))
			Expect(model.image).To(Equal(jpegBytes()))
			Expect(model.prompt).To(ContainSubstring("job_title"))
			Expect(model.prompt).To(ContainSubstring("return null for that field"))
		})
	})

	When("the location is a file URI", func() {
		BeforeEach(func() {
			location = "file://" + location
		})

		It("reads the file", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(model.calls).To(Equal(1))
		})
	})

	When("the image is a PNG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			location = writeFile(dir, "card.png", buf.Bytes())
		})

		It("sends it as PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(model.mimeType).To(Equal("image/png"))
		})
	})

	When("the image is a GIF", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(gif.Encode(&buf, testImage(), nil)).To(Succeed())
			location = writeFile(dir, "card.gif", buf.Bytes())
		})

		It("converts it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(model.mimeType).To(Equal("image/png"))
			_, format, decodeErr := image.Decode(bytes.NewReader(model.image))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the file is not an image", func() {
		BeforeEach(func() {
			location = writeFile(dir, "card.txt", []byte("just some text"))
		})

		It("fails without calling the model", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
			Expect(model.calls).To(BeZero())
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			location = filepath.Join(dir, "missing.jpg")
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(BeZero())
		})
	})

	When("the model reply is not JSON", func() {
		BeforeEach(func() {
			model.replies = []string{`Sure! {name: "Ada"}`}
		})

		It("returns a malformed response error", func() {
			Expect(errors.Is(err, ErrMalformedResponse)).To(BeTrue())
		})

		It("does not retry", func() {
			Expect(model.calls).To(Equal(1))
		})
	})

	When("the model call fails once", func() {
		BeforeEach(func() {
			model.errs = []error{errors.New("connection reset")}
		})

		It("retries and succeeds", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(model.calls).To(Equal(2))
		})
	})

	When("the model call keeps failing", func() {
		BeforeEach(func() {
			failure := errors.New("service unavailable")
			model.errs = []error{failure, failure, failure, failure}
		})

		It("gives up after three attempts", func() {
			Expect(err).To(MatchError(ContainSubstring("service unavailable")))
			Expect(model.calls).To(Equal(3))
		})
	})

	When("the model error is final", func() {
		BeforeEach(func() {
			model.errs = []error{finalError{}}
		})

		It("does not retry", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(Equal(1))
		})
	})

	When("gemini blocks the prompt", func() {
		BeforeEach(func() {
			model.errs = []error{fmt.Errorf("calling gemini: %w", classifyGeminiError(&gemini.BlockedError{}))}
		})

		It("does not retry", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(Equal(1))
		})
	})

	When("gemini rejects the API key", func() {
		BeforeEach(func() {
			model.errs = []error{fmt.Errorf("calling gemini: %w", classifyGeminiError(&googleapi.Error{Code: 403}))}
		})

		It("does not retry", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(Equal(1))
		})
	})

	When("gemini is rate limited once", func() {
		BeforeEach(func() {
			model.errs = []error{fmt.Errorf("calling gemini: %w", classifyGeminiError(&googleapi.Error{Code: 429}))}
		})

		It("retries and succeeds", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(model.calls).To(Equal(2))
		})
	})

	When("the model returns nothing", func() {
		BeforeEach(func() {
			model.errs = []error{ErrNoResponse}
		})

		It("does not retry", func() {
			Expect(errors.Is(err, ErrNoResponse)).To(BeTrue())
			Expect(model.calls).To(Equal(1))
		})
	})

	When("attempts are limited to one", func() {
		BeforeEach(func() {
			client = New(model, WithAttempts(1))
			model.errs = []error{errors.New("timeout")}
		})

		It("makes a single call", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(Equal(1))
		})
	})
})

var _ = Describe("error classification", func() {
	DescribeTable("retryable",
		func(err error, want bool) {
			Expect(retryable(err)).To(Equal(want))
		},
		Entry("blocked gemini prompt", classifyGeminiError(&gemini.BlockedError{}), false),
		Entry("gemini bad request", classifyGeminiError(&googleapi.Error{Code: 400}), false),
		Entry("gemini permission denied", classifyGeminiError(&googleapi.Error{Code: 403}), false),
		Entry("gemini rate limit", classifyGeminiError(&googleapi.Error{Code: 429}), true),
		Entry("gemini unavailable", classifyGeminiError(&googleapi.Error{Code: 503}), true),
		Entry("generated client bad argument", classifyGeminiError(httpCodeError(400)), false),
		Entry("generated client server error", classifyGeminiError(httpCodeError(500)), true),
		Entry("genai invalid argument", classifyGenAIError(genai.APIError{Code: 400}), false),
		Entry("genai rate limit", classifyGenAIError(genai.APIError{Code: 429}), true),
		Entry("genai internal error", classifyGenAIError(genai.APIError{Code: 500}), true),
		Entry("network error", classifyGeminiError(errors.New("connection reset")), true),
	)

	It("keeps the cause reachable", func() {
		err := fmt.Errorf("calling gemini: %w", classifyGeminiError(&googleapi.Error{Code: 403}))
		var gerr *googleapi.Error
		Expect(errors.As(err, &gerr)).To(BeTrue())
		Expect(gerr.Code).To(Equal(403))
	})
})

var _ = Describe("isHEIC", func() {
	It("recognises the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEIC(data)).To(BeTrue())
	})

	It("rejects other ftyp brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypmp420000")...)
		Expect(isHEIC(data)).To(BeFalse())
	})

	It("rejects short input", func() {
		Expect(isHEIC([]byte("ftyp"))).To(BeFalse())
	})
})
