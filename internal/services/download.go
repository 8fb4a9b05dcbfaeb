package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReleaseDistributor is the ReleaseDistributor of SPEC_FULL.md §4.K: serves
// presigned download URLs for POS client installers. Not gated by the
// bearer-token middleware — a device that has not yet activated a license
// must still be able to fetch its installer.
type ReleaseDistributor struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	bucket    string
	keyPrefix string
	urlExpiry time.Duration
}

// ReleaseDistributorConfig configures a ReleaseDistributor.
type ReleaseDistributorConfig struct {
	Region          string
	Bucket          string
	KeyPrefix       string // prefix for release files, e.g. "releases/"
	AccessKeyID     string
	SecretAccessKey string
	URLExpiry       time.Duration // default: 15 minutes, per §4.K
	Endpoint        string        // custom endpoint for S3-compatible storage
	UsePathStyle    bool
}

// ReleaseInfo describes one available product/version/platform combination.
type ReleaseInfo struct {
	Product   string   `json:"product"`
	Version   string   `json:"version"`
	Platforms []string `json:"platforms"`
}

// DownloadURL is a presigned, time-limited installer download link.
type DownloadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"` // seconds
	Filename  string    `json:"filename"`
	Size      int64     `json:"size,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
}

// NewReleaseDistributor creates a ReleaseDistributor backed by S3-compatible
// object storage.
func NewReleaseDistributor(ctx context.Context, cfg ReleaseDistributorConfig) (*ReleaseDistributor, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	presigner := s3.NewPresignClient(client)

	expiry := cfg.URLExpiry
	if expiry == 0 {
		expiry = 15 * time.Minute
	}

	return &ReleaseDistributor{
		s3Client:  client,
		presigner: presigner,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		urlExpiry: expiry,
	}, nil
}

// GenerateDownloadURL builds the object key
// releases/<product>/<version>/<platform>/<filename> and returns a
// presigned GET URL. Falls back to fallbackURL (AppConfig.app_update_url)
// when no storage backend is configured, since air-gapped/on-prem
// deployments of this server do not all run against S3.
func (d *ReleaseDistributor) GenerateDownloadURL(ctx context.Context, product, version, platform, fallbackURL string) (*DownloadURL, error) {
	if d == nil {
		if fallbackURL == "" {
			return nil, fmt.Errorf("no storage backend configured and no fallback URL set")
		}
		return &DownloadURL{URL: fallbackURL, Filename: fmt.Sprintf("%s-%s", product, platform)}, nil
	}

	key := d.releaseKey(product, version, platform)

	headOutput, err := d.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if fallbackURL != "" {
			return &DownloadURL{URL: fallbackURL, Filename: d.filename(product, platform)}, nil
		}
		return nil, fmt.Errorf("release not found: %s/%s/%s", product, version, platform)
	}

	presignedReq, err := d.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = d.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	result := &DownloadURL{
		URL:       presignedReq.URL,
		ExpiresAt: time.Now().Add(d.urlExpiry),
		ExpiresIn: int64(d.urlExpiry.Seconds()),
		Filename:  d.filename(product, platform),
	}
	if headOutput.ContentLength != nil {
		result.Size = *headOutput.ContentLength
	}
	if headOutput.Metadata != nil {
		if checksum, ok := headOutput.Metadata["sha256"]; ok {
			result.Checksum = checksum
		}
	}

	return result, nil
}

// ListReleases lists available platform/version combinations for a
// product by listing objects under its prefix.
func (d *ReleaseDistributor) ListReleases(ctx context.Context, product string) ([]ReleaseInfo, error) {
	prefix := fmt.Sprintf("%s%s/", d.keyPrefix, product)
	output, err := d.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}

	byVersion := map[string]*ReleaseInfo{}
	for _, obj := range output.Contents {
		version, platform, ok := parseReleaseKey(*obj.Key, d.keyPrefix, product)
		if !ok {
			continue
		}
		info, exists := byVersion[version]
		if !exists {
			info = &ReleaseInfo{Product: product, Version: version}
			byVersion[version] = info
		}
		info.Platforms = append(info.Platforms, platform)
	}

	releases := make([]ReleaseInfo, 0, len(byVersion))
	for _, info := range byVersion {
		releases = append(releases, *info)
	}
	return releases, nil
}

func (d *ReleaseDistributor) releaseKey(product, version, platform string) string {
	filename := d.filename(product, platform)
	return fmt.Sprintf("%s%s/%s/%s/%s", d.keyPrefix, product, version, platform, filename)
}

func (d *ReleaseDistributor) filename(product, platform string) string {
	ext := ""
	if platform == "windows-amd64" {
		ext = ".exe"
	}
	return fmt.Sprintf("%s-%s%s", product, platform, ext)
}

// parseReleaseKey extracts (version, platform) from a
// "<prefix><product>/<version>/<platform>/<filename>" object key.
func parseReleaseKey(key, prefix, product string) (version, platform string, ok bool) {
	rest := key
	head := prefix + product + "/"
	if len(rest) <= len(head) || rest[:len(head)] != head {
		return "", "", false
	}
	rest = rest[len(head):]

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", "", false
	}
	version = rest[:slash]
	rest = rest[slash+1:]

	slash = strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", "", false
	}
	platform = rest[:slash]
	return version, platform, true
}

// UploadRelease uploads a new release for operator tooling.
func (d *ReleaseDistributor) UploadRelease(ctx context.Context, product, version, platform string, data []byte, checksum string) error {
	key := d.releaseKey(product, version, platform)

	metadata := map[string]string{}
	if checksum != "" {
		metadata["sha256"] = checksum
	}

	_, err := d.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(d.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to upload release: %w", err)
	}
	return nil
}
