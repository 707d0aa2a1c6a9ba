package indexer

import (
	"bytes"
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	document_url "github.com/cloudwego/eino-ext/components/document/loader/url"
	"github.com/cloudwego/eino-ext/components/document/parser/html"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino-ext/components/document/parser/xlsx"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/os/gfile"
	"github.com/minio/minio-go/v7"

	"github.com/Malowking/textverse/core/common"
	"github.com/Malowking/textverse/core/errors"
)

// SupportedExtensions lists the file types picked up when a directory is indexed.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".html", ".htm", ".xlsx"}

// newParser selects a parser by the source's extension and reads anything
// else as plain text.
func newParser(ctx context.Context) (parser.Parser, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "create pdf parser")
	}
	htmlParser, err := html.NewParser(ctx, &html.Config{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "create html parser")
	}
	xlsxParser, err := xlsx.NewXlsxParser(ctx, &xlsx.Config{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDocumentParseFailed, err, "create xlsx parser")
	}

	return parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers: map[string]parser.Parser{
			".pdf":  pdfParser,
			".html": htmlParser,
			".htm":  htmlParser,
			".xlsx": xlsxParser,
		},
		FallbackParser: parser.TextParser{},
	})
}

// NewLoader returns a loader that reads local files, http(s) URLs and, when
// objectClient is set, s3://bucket/prefix sources.
func NewLoader(ctx context.Context, objectClient *minio.Client) (document.Loader, error) {
	p, err := newParser(ctx)
	if err != nil {
		return nil, err
	}

	fldr, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: false,
		Parser:      p,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrFileReadFailed, err, "create file loader")
	}

	uldr, err := document_url.NewLoader(ctx, &document_url.LoaderConfig{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrFileReadFailed, err, "create url loader")
	}

	return &multiLoader{
		fileLoader:   fldr,
		urlLoader:    uldr,
		objectClient: objectClient,
		parser:       p,
	}, nil
}

type multiLoader struct {
	fileLoader   document.Loader
	urlLoader    document.Loader
	objectClient *minio.Client
	parser       parser.Parser
}

func (x *multiLoader) Load(ctx context.Context, src document.Source, opts ...document.LoaderOption) ([]*schema.Document, error) {
	var (
		docs []*schema.Document
		err  error
	)
	switch {
	case common.IsObjectURI(src.URI):
		return x.loadObjects(ctx, src.URI)
	case common.IsURL(src.URI):
		docs, err = x.urlLoader.Load(ctx, src, opts...)
	default:
		docs, err = x.fileLoader.Load(ctx, src, opts...)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "load %s", src.URI)
	}
	for _, doc := range docs {
		if doc.MetaData == nil {
			doc.MetaData = make(map[string]any)
		}
		if _, ok := doc.MetaData[common.MetaSource]; !ok {
			doc.MetaData[common.MetaSource] = src.URI
		}
	}
	return docs, nil
}

// loadObjects 读取 bucket/prefix 下的全部对象并逐个解析
func (x *multiLoader) loadObjects(ctx context.Context, uri string) ([]*schema.Document, error) {
	if x.objectClient == nil {
		return nil, errors.Newf(errors.ErrInvalidParameter, "object storage is not configured, cannot load %s", uri)
	}
	bucket, prefix, ok := common.SplitObjectURI(uri)
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidParameter, "invalid object uri: %s", uri)
	}

	keys, err := common.ListObjectKeys(ctx, x.objectClient, bucket, prefix)
	if err != nil {
		return nil, errors.Wrap(errors.ErrFileReadFailed, err, "list objects")
	}

	var docs []*schema.Document
	for _, key := range keys {
		if !isSupported(key) {
			g.Log().Debugf(ctx, "Skipping unsupported object %s", key)
			continue
		}
		content, err := common.ReadObject(ctx, x.objectClient, bucket, key)
		if err != nil {
			return nil, errors.Wrap(errors.ErrFileReadFailed, err, "read object")
		}

		source := "s3://" + bucket + "/" + key
		parsed, err := x.parser.Parse(ctx, bytes.NewReader(content),
			parser.WithURI(key),
			parser.WithExtraMeta(map[string]any{
				common.MetaSource:    source,
				common.MetaFileName:  gfile.Basename(key),
				common.MetaExtension: strings.ToLower(gfile.Ext(key)),
			}),
		)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrDocumentParseFailed, err, "parse %s", source)
		}
		docs = append(docs, parsed...)
	}
	return docs, nil
}

func isSupported(name string) bool {
	ext := strings.ToLower(gfile.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ExpandSource turns a directory into its supported files. Any other source
// is returned unchanged.
func ExpandSource(ctx context.Context, source string) ([]string, error) {
	if common.IsURL(source) || common.IsObjectURI(source) {
		return []string{source}, nil
	}
	if !gfile.Exists(source) {
		return nil, errors.Newf(errors.ErrFileReadFailed, "source not found: %s", source)
	}
	if !gfile.IsDir(source) {
		return []string{source}, nil
	}

	files, err := gfile.ScanDirFileFunc(source, "*", true, func(path string) string {
		if isSupported(path) {
			return path
		}
		return ""
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrFileReadFailed, err, "scan %s", source)
	}
	g.Log().Infof(ctx, "Found %d supported files under %s", len(files), source)
	return files, nil
}
