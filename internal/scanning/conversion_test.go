package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func encodeTestPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func encodeTestJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("prepareImageData", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		mimeType    string
		converted   bool
		err         error
	)

	JustBeforeEach(func() {
		output, mimeType, converted, err = prepareImageData(input, contentType)
	})

	When("the upload is already PNG", func() {
		BeforeEach(func() {
			input = encodeTestPNG()
			contentType = " Image/PNG "
		})

		It("should return the data untouched", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(output).To(Equal(input))
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the upload is JPEG", func() {
		BeforeEach(func() {
			input = encodeTestJPEG()
			contentType = "image/jpeg"
		})

		It("should convert it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			Expect(mimeType).To(Equal("image/png"))
			_, format, decodeErr := image.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			input = encodeTestJPEG()
			contentType = ""
		})

		It("should assume JPEG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported image format"))
		})
	})
})

var _ = Describe("isHEIC", func() {
	It("should detect the ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEIC(data, "application/octet-stream")).To(BeTrue())
	})

	It("should detect the MIME type", func() {
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})

	It("should reject other data", func() {
		Expect(isHEIC(encodeTestPNG(), "image/png")).To(BeFalse())
	})
})

var _ = Describe("normalizeMimeType", func() {
	It("should strip parameters", func() {
		Expect(normalizeMimeType("image/JPEG; charset=binary")).To(Equal("image/jpeg"))
	})

	It("should default to JPEG", func() {
		Expect(normalizeMimeType("  ")).To(Equal("image/jpeg"))
	})
})

var _ = Describe("prepareOCRImage", func() {
	It("should produce a grayscale PNG", func() {
		output, err := prepareOCRImage(encodeTestJPEG(), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		img, format, err := image.Decode(bytes.NewReader(output))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
		Expect(img.ColorModel()).To(Equal(color.GrayModel))
	})
})
