package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "oddsflow/config"
	"oddsflow/logger"
	"oddsflow/models"
)

type ParquetRecord struct {
	SnapshotID   string   `parquet:"name=snapshot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TakenAt      int64    `parquet:"name=taken_at, type=INT64"`
	ID           string   `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FixtureID    string   `parquet:"name=fixture_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	League       string   `parquet:"name=league, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sport        string   `parquet:"name=sport, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market       string   `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sportsbook   string   `parquet:"name=sportsbook, type=BYTE_ARRAY, convertedtype=UTF8"`
	Selection    string   `parquet:"name=selection, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        *int64   `parquet:"name=price, type=INT64, repetitiontype=OPTIONAL"`
	DecimalPrice *string  `parquet:"name=decimal_price, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Points       *float64 `parquet:"name=points, type=DOUBLE, repetitiontype=OPTIONAL"`
	IsMain       bool     `parquet:"name=is_main, type=BOOLEAN"`
	IsLive       bool     `parquet:"name=is_live, type=BOOLEAN"`
	Status       string   `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	ObservedAt   int64    `parquet:"name=observed_at, type=INT64"`
}

func newParquetRecord(snap models.Snapshot, rec models.Record) ParquetRecord {
	out := ParquetRecord{
		SnapshotID: snap.ID,
		TakenAt:    snap.TakenAt.UnixMilli(),
		ID:         rec.ID,
		FixtureID:  rec.FixtureID,
		League:     rec.League,
		Sport:      rec.Sport,
		Market:     rec.Market,
		Sportsbook: rec.Sportsbook,
		Selection:  rec.SelectionName,
		IsMain:     rec.IsMain,
		IsLive:     rec.IsLive,
		Status:     string(rec.Status),
		ObservedAt: rec.ObservedAt.UnixMilli(),
	}
	if rec.Price != nil {
		p := int64(*rec.Price)
		out.Price = &p
	}
	if rec.DecimalPrice.Valid {
		d := rec.DecimalPrice.Decimal.String()
		out.DecimalPrice = &d
	}
	if rec.Points != nil {
		p := *rec.Points
		out.Points = &p
	}
	return out
}

// memoryFileWriter lets the parquet writer build a file in memory so it can
// be uploaded with a single PutObject.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads every snapshot as one object, parquet or csv.
type S3Sink struct {
	client      putObjectAPI
	bucket      string
	prefix      string
	format      string
	compression string
	version     string
	log         *logger.Log
}

// NewS3Sink configures the AWS SDK from the storage settings. Static
// credentials are used when both keys are set, otherwise the default chain.
func NewS3Sink(ctx context.Context, cfg *appconfig.Config) (*S3Sink, error) {
	log := logger.GetLogger()
	s3cfg := cfg.Storage.S3

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s3cfg.Region),
	}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3cfg.AccessKeyID,
				s3cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_sink").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	log.WithComponent("s3_sink").WithFields(logger.Fields{
		"bucket":     s3cfg.Bucket,
		"region":     s3cfg.Region,
		"endpoint":   s3cfg.Endpoint,
		"path_style": s3cfg.PathStyle,
		"format":     s3cfg.Format,
	}).Info("s3 sink initialized")

	return newS3Sink(client, s3cfg, cfg.Oddsflow.Version, log), nil
}

func newS3Sink(client putObjectAPI, cfg appconfig.S3Config, version string, log *logger.Log) *S3Sink {
	if log == nil {
		log = logger.GetLogger()
	}
	format := cfg.Format
	if format == "" {
		format = "parquet"
	}
	return &S3Sink{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		format:      format,
		compression: cfg.Compression,
		version:     version,
		log:         log,
	}
}

func (s *S3Sink) Name() string { return "s3" }

func (s *S3Sink) Export(ctx context.Context, snap models.Snapshot) error {
	if len(snap.Records) == 0 {
		s.log.WithComponent("s3_sink").Debug("snapshot has no records, skipping")
		return nil
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	switch s.format {
	case "csv":
		rows := make([]models.RawRecord, 0, len(snap.Records))
		for _, rec := range snap.Records {
			rows = append(rows, rec.Raw)
		}
		var buf bytes.Buffer
		err = WriteRawCSV(&buf, rows)
		data, contentType = buf.Bytes(), "text/csv"
	default:
		data, err = s.createParquetFile(snap)
		contentType = "application/octet-stream"
	}
	if err != nil {
		return err
	}

	key := s.objectKey(snap)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"content-type":     s.format,
			"compression":      s.compression,
			"snapshot-id":      snap.ID,
			"oddsflow-version": s.version,
		},
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", s.bucket, err)
	}

	logger.IncrementExportWrite("s3", len(data))
	s.log.WithComponent("s3_sink").WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
		"records":   len(snap.Records),
	}).Info("snapshot uploaded to S3")
	return nil
}

// objectKey partitions by date and hour of the snapshot.
func (s *S3Sink) objectKey(snap models.Snapshot) string {
	ts := snap.TakenAt.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	filename := fmt.Sprintf("odds_%s_%s.%s", ts.Format("20060102150405"), snap.ID, s.format)
	return path.Join(
		s.prefix,
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		filename,
	)
}

func (s *S3Sink) createParquetFile(snap models.Snapshot) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch s.compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, rec := range snap.Records {
		if err := pw.Write(newParquetRecord(snap, rec)); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
