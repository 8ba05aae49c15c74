package content

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	dErrors "docanchor/pkg/domain-errors"
)

// FileType is a supported upload format.
type FileType string

const (
	TypePDF  FileType = "pdf"
	TypePNG  FileType = "png"
	TypeJPEG FileType = "jpeg"
)

var (
	magicPDF  = []byte("%PDF-")
	magicPNG  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
)

// Sniff determines the file type of the raw bytes. PDFs are additionally
// structurally validated so a corrupt file fails preprocessing here instead
// of wasting a forensics submission.
func Sniff(data []byte) (FileType, error) {
	switch {
	case len(data) == 0:
		return "", dErrors.New(dErrors.CodeValidation, "file is empty")
	case bytes.HasPrefix(data, magicPDF):
		if err := validatePDF(data); err != nil {
			return "", dErrors.Wrap(dErrors.CodeValidation, "pdf failed structural validation", err)
		}
		return TypePDF, nil
	case bytes.HasPrefix(data, magicPNG):
		return TypePNG, nil
	case bytes.HasPrefix(data, magicJPEG):
		return TypeJPEG, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unsupported file type")
	}
}

func validatePDF(data []byte) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.Validate(bytes.NewReader(data), conf)
}
