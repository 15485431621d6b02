// Package textract runs image OCR through AWS Textract.
package textract

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awstextract "github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// AnalyzeAPI is the part of the Textract client the processor needs.
type AnalyzeAPI interface {
	AnalyzeDocument(ctx context.Context, params *awstextract.AnalyzeDocumentInput, optFns ...func(*awstextract.Options)) (*awstextract.AnalyzeDocumentOutput, error)
}

type Config struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
	EnableTable   bool
	EnableForm    bool
}

type Processor struct {
	client AnalyzeAPI
	logger logger.Logger
	config *Config
}

// NewProcessor builds a Textract client from cfg. Static credentials are
// used when both keys are set, the default AWS chain otherwise.
func NewProcessor(ctx context.Context, cfg *Config, log logger.Logger) (*Processor, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := awstextract.NewFromConfig(awsCfg, func(o *awstextract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewProcessorWithClient(client, cfg, log), nil
}

func NewProcessorWithClient(client AnalyzeAPI, cfg *Config, log logger.Logger) *Processor {
	return &Processor{
		client: client,
		logger: log,
		config: cfg,
	}
}

func (p *Processor) CanProcess(format models.Format) bool {
	return format == models.FormatImage
}

func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var features []types.FeatureType
	if p.config.EnableTable {
		features = append(features, types.FeatureTypeTables)
	}
	if p.config.EnableForm {
		features = append(features, types.FeatureTypeForms)
	}
	// AnalyzeDocument rejects an empty feature list
	if len(features) == 0 {
		features = append(features, types.FeatureTypeLayout)
	}

	result, err := p.client.AnalyzeDocument(ctx, &awstextract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: data},
		FeatureTypes: features,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze document: %w", err)
	}

	blocks := indexBlocks(result.Blocks)
	var chunks []models.DocumentChunk

	if lines := p.lines(result.Blocks); len(lines) > 0 {
		chunks = append(chunks, p.chunk(strings.Join(lines, "\n"), "text", nil))
	}

	if p.config.EnableTable {
		for _, rows := range tables(result.Blocks, blocks) {
			chunks = append(chunks, p.chunk(document.MarkdownTable(rows), "table", map[string]interface{}{
				"rows": len(rows),
			}))
		}
	}

	if p.config.EnableForm {
		for _, f := range forms(result.Blocks, blocks) {
			chunks = append(chunks, p.chunk(fmt.Sprintf("**%s**: %s", f.Key, f.Value), "form", map[string]interface{}{
				"key": f.Key,
			}))
		}
	}

	p.logger.Debug("textract analyzed image",
		logger.Int("blocks", len(result.Blocks)),
		logger.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

func (p *Processor) chunk(content, kind string, extra map[string]interface{}) models.DocumentChunk {
	meta := map[string]interface{}{
		document.MetaSource:    "textract",
		document.MetaType:      kind,
		document.MetaPageCount: 1,
	}
	for k, v := range extra {
		meta[k] = v
	}
	return models.DocumentChunk{Content: content, Metadata: meta}
}

func (p *Processor) lines(blocks []types.Block) []string {
	var texts []string
	for _, block := range blocks {
		if block.BlockType == types.BlockTypeLine &&
			block.Text != nil &&
			block.Confidence != nil &&
			*block.Confidence >= p.config.MinConfidence {
			texts = append(texts, *block.Text)
		}
	}
	return texts
}

func (p *Processor) Close() error {
	return nil
}

func indexBlocks(blocks []types.Block) map[string]types.Block {
	index := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			index[*b.Id] = b
		}
	}
	return index
}

func childIDs(block types.Block, rel types.RelationshipType) []string {
	var ids []string
	for _, r := range block.Relationships {
		if r.Type == rel {
			ids = append(ids, r.Ids...)
		}
	}
	return ids
}

// childText joins the WORD children of a block.
func childText(block types.Block, index map[string]types.Block) string {
	var words []string
	for _, id := range childIDs(block, types.RelationshipTypeChild) {
		if child, ok := index[id]; ok && child.BlockType == types.BlockTypeWord && child.Text != nil {
			words = append(words, *child.Text)
		}
	}
	return strings.Join(words, " ")
}

// tables returns every TABLE block as rows of cell text.
func tables(blocks []types.Block, index map[string]types.Block) [][][]string {
	var out [][][]string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeTable {
			continue
		}

		type cell struct {
			row, col int
			text     string
		}
		var cells []cell
		rows, cols := 0, 0
		for _, id := range childIDs(block, types.RelationshipTypeChild) {
			c, ok := index[id]
			if !ok || c.BlockType != types.BlockTypeCell || c.RowIndex == nil || c.ColumnIndex == nil {
				continue
			}
			r, col := int(*c.RowIndex), int(*c.ColumnIndex)
			if r > rows {
				rows = r
			}
			if col > cols {
				cols = col
			}
			cells = append(cells, cell{row: r, col: col, text: childText(c, index)})
		}
		if rows == 0 || cols == 0 {
			continue
		}

		grid := make([][]string, rows)
		for i := range grid {
			grid[i] = make([]string, cols)
		}
		for _, c := range cells {
			grid[c.row-1][c.col-1] = c.text
		}
		out = append(out, grid)
	}
	return out
}

type FormField struct {
	Key   string
	Value string
}

// forms pairs KEY_VALUE_SET key blocks with their values, sorted by key.
func forms(blocks []types.Block, index map[string]types.Block) []FormField {
	var fields []FormField
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeKeyValueSet || !isKey(block) {
			continue
		}
		key := childText(block, index)
		var value string
		for _, id := range childIDs(block, types.RelationshipTypeValue) {
			if v, ok := index[id]; ok {
				value = childText(v, index)
				break
			}
		}
		if key != "" && value != "" {
			fields = append(fields, FormField{Key: key, Value: value})
		}
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

func isKey(block types.Block) bool {
	for _, t := range block.EntityTypes {
		if t == types.EntityTypeKey {
			return true
		}
	}
	return false
}
