package scan

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DiskCaptures", func() {
	var (
		tmpDir   string
		captures *DiskCaptures
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		captures, err = NewDiskCaptures(filepath.Join(tmpDir, "captures"))
		Expect(err).NotTo(HaveOccurred())
		captures.newID = func() string { return "id" }
	})

	Describe("Save", func() {
		It("writes the photo under a unique, sanitized name", func() {
			location, err := captures.Save("IMG 2024-01-15 (1).JPG", []byte("photo"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Base(location)).To(Equal("id_IMG_2024-01-15_1.jpg"))
			Expect(location).To(BeAnExistingFile())
		})

		It("keeps the photo inside the capture directory", func() {
			location, err := captures.Save("../../etc/passwd", []byte("photo"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Dir(location)).To(Equal(filepath.Join(tmpDir, "captures")))
		})
	})

	Describe("Delete", func() {
		It("removes a saved photo", func() {
			location, err := captures.Save("card.jpg", []byte("photo"))
			Expect(err).NotTo(HaveOccurred())

			Expect(captures.Delete(location)).To(Succeed())
			Expect(location).NotTo(BeAnExistingFile())
		})

		It("refuses paths outside the capture directory", func() {
			outside := filepath.Join(tmpDir, "keep.jpg")
			Expect(os.WriteFile(outside, []byte("photo"), 0644)).To(Succeed())

			Expect(captures.Delete(outside)).NotTo(Succeed())
			Expect(outside).To(BeAnExistingFile())
		})

		It("returns an error for a missing photo", func() {
			Expect(captures.Delete(filepath.Join(tmpDir, "captures", "missing.jpg"))).NotTo(Succeed())
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleans names",
		func(in, want string) {
			Expect(sanitizeFilename(in)).To(Equal(want))
		},
		Entry("plain", "card.jpg", "card.jpg"),
		Entry("special characters", "my card!@#.png", "my_card.png"),
		Entry("empty", "", "card"),
		Entry("only symbols", "###.heic", "card.heic"),
		Entry("long names", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.jpg", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.jpg"),
	)
})
