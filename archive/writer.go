package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "tokenflow/config"
	"tokenflow/logger"
	"tokenflow/models"
)

// TradeParquetRecord is the flat schema one archived trade result is stored
// under.
type TradeParquetRecord struct {
	RuleID    int64   `parquet:"name=rule_id, type=INT64"`
	Venue     string  `parquet:"name=venue, type=BYTE_ARRAY, convertedtype=UTF8"`
	Token     string  `parquet:"name=token, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	QuoteQty  float64 `parquet:"name=quote_qty, type=DOUBLE"`
	Status    string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// Writer buffers trade results and flushes them as parquet objects to S3 on
// a fixed interval and at shutdown. It is an optional component; when the
// archive is disabled the dispatcher simply runs without a recorder.
type Writer struct {
	cfg      appconfig.ArchiveConfig
	s3Client *s3.Client
	log      *logger.Log

	ctx     context.Context
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	buffer  []models.TradeResult
}

// NewWriter configures the AWS SDK and creates the S3 client used for
// archiving.
func NewWriter(cfg appconfig.ArchiveConfig, log *logger.Log) (*Writer, error) {
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	writer := &Writer{
		cfg:      cfg,
		s3Client: s3.NewFromConfig(awsCfg),
		log:      log,
	}

	log.WithComponent("trade_archive").WithFields(logger.Fields{
		"bucket": cfg.Bucket,
		"region": cfg.Region,
	}).Info("trade archive initialized")

	return writer, nil
}

// Start launches the periodic flush worker.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.flushWorker()

	w.log.WithComponent("trade_archive").Info("trade archive started")
	return nil
}

// Stop terminates the flush worker, which drains the buffer on shutdown. It
// does not depend on the start context being cancelled first.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	done := w.done
	w.mu.Unlock()

	close(done)
	w.wg.Wait()
	w.log.WithComponent("trade_archive").Info("trade archive stopped")
}

// RecordTrade appends one trade result to the pending archive buffer.
func (w *Writer) RecordTrade(result models.TradeResult) {
	w.mu.Lock()
	w.buffer = append(w.buffer, result)
	w.mu.Unlock()
}

func (w *Writer) flushWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("trade_archive").WithFields(logger.Fields{"worker": "flush"})

	interval := w.cfg.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flush("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.done:
			w.flush("shutdown")
			log.Info("flush worker stopped")
			return
		case <-ticker.C:
			w.flush("interval")
		}
	}
}

func (w *Writer) flush(reason string) {
	w.mu.Lock()
	pending := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	log := w.log.WithComponent("trade_archive").WithFields(logger.Fields{
		"reason": reason,
		"trades": len(pending),
	})

	payload, err := encodeParquet(pending)
	if err != nil {
		log.WithError(err).Error("failed to encode trade archive batch")
		return
	}

	key := w.objectKey(pending[0].Timestamp)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	}); err != nil {
		log.WithError(err).Error("failed to upload trade archive batch")
		return
	}

	log.WithFields(logger.Fields{"key": key, "bytes": len(payload)}).Info("trade archive batch uploaded")
	logger.RecordFlow("archive_uploads", len(payload))
}

func (w *Writer) objectKey(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	prefix := w.cfg.Prefix
	if prefix == "" {
		prefix = "trades"
	}
	return fmt.Sprintf("%s/date=%s/%s.parquet", prefix, ts.UTC().Format("2006-01-02"), uuid.NewString())
}

func encodeParquet(results []models.TradeResult) ([]byte, error) {
	file := newMemoryFileWriter()

	pw, err := parquetwriter.NewParquetWriter(file, new(TradeParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, result := range results {
		status := "submitted"
		if result.Err != nil {
			status = "failed"
		}
		qty, _ := result.Order.QuoteQty.Float64()
		record := TradeParquetRecord{
			RuleID:    int64(result.RuleID),
			Venue:     result.Venue,
			Token:     result.Token,
			Symbol:    result.Order.Symbol,
			QuoteQty:  qty,
			Status:    status,
			Timestamp: result.Timestamp.UnixMilli(),
		}
		if err := pw.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet file: %w", err)
	}

	return file.Bytes(), nil
}
