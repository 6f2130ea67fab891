package docs

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/contracts/pkg/serrors"
)

// Fallback insert positions used when a signature token is absent from
// the document.
const (
	PositionTop    = "top"
	PositionBottom = "bottom"
)

var ErrNotAnImage = serrors.NewError("DOC_SIGNATURE_NOT_IMAGE", "signature payload is not an image", "Docs.Errors.NotAnImage")

// Embedder places signature images into rendered documents by replacing
// their {{TOKEN}} placeholder. A missing token is not an error: the image
// block is inserted at the configured fallback position instead.
type Embedder struct {
	storage  *Storage
	fallback string
	log      *logrus.Logger
}

func NewEmbedder(storage *Storage, fallbackPosition string, log *logrus.Logger) *Embedder {
	return &Embedder{storage: storage, fallback: fallbackPosition, log: log}
}

func (e *Embedder) EmbedImage(ctx context.Context, docPath, token string, image []byte, signerName string, signedAt time.Time) error {
	mtype := mimetype.Detect(image)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("%w: got %s", ErrNotAnImage, mtype.String())
	}

	assetName := strings.ToLower(token) + mtype.Extension()
	if err := e.storage.Write(e.storage.AssetPath(docPath, assetName), image); err != nil {
		return err
	}

	doc, err := e.storage.Read(docPath)
	if err != nil {
		return err
	}

	block := signatureBlock(assetName, signerName, signedAt)
	tokenRE := regexp.MustCompile(`\{\{\s*` + regexp.QuoteMeta(token) + `\s*\}\}`)

	var out string
	if tokenRE.Match(doc) {
		out = tokenRE.ReplaceAllLiteralString(string(doc), block)
	} else {
		e.log.WithFields(logrus.Fields{
			"path":     docPath,
			"token":    token,
			"position": e.fallback,
		}).Warn("docs: signature token not found, using fallback position")
		if e.fallback == PositionTop {
			out = block + "\n\n" + string(doc)
		} else {
			out = strings.TrimRight(string(doc), "\n") + "\n\n" + block + "\n"
		}
	}

	return e.storage.Write(docPath, []byte(normalize(out)))
}

// AppendAnnotation adds a quoted note at the end of the document, used
// for decision comments that must travel with the file.
func (e *Embedder) AppendAnnotation(docPath, text string) error {
	doc, err := e.storage.Read(docPath)
	if err != nil {
		return err
	}
	out := strings.TrimRight(string(doc), "\n") + "\n\n> " + text + "\n"
	return e.storage.Write(docPath, []byte(out))
}

func signatureBlock(assetName, signerName string, signedAt time.Time) string {
	return fmt.Sprintf("![signature of %s](signatures/%s)\n_Signed by %s on %s_",
		signerName, assetName, signerName, signedAt.UTC().Format("2006-01-02 15:04 MST"))
}
