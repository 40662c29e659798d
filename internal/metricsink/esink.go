package metricsink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
)

// ESConfig configures the Elasticsearch metrics-snapshot sink, mirroring the
// teacher's ElasticsearchAuthConfig shape (src/common/elasticsearch.go) down
// to the auth "type" discriminator, but scoped to what a read-only metrics
// publisher needs: hosts, index, and a publish interval in place of a
// channel + batch size (this sink has exactly one document per tick, never
// a backlog to batch).
type ESConfig struct {
	Hosts    []string
	Index    string
	Interval time.Duration

	AuthType string // "", "basic", "api_key", "bearer"
	Username string
	Password string
	APIKey   string
	Token    string
}

// ESSink periodically indexes the metrics snapshot document into
// Elasticsearch via the Bulk API, grounded in
// src/common/elasticsearch.go's ElasticsearchProducer.sendBatch (one
// index-action/document pair per line of NDJSON).
type ESSink struct {
	client *elasticsearch.Client
	index  string
}

// NewESSink constructs the Elasticsearch client the same way
// NewElasticsearchProducer does: TLS verification is skipped since the
// cache has no certificate-bundle configuration surface of its own, and
// auth is selected the same three-way switch the teacher uses.
func NewESSink(cfg ESConfig) (*ESSink, error) {
	esCfg := elasticsearch.Config{
		Addresses:     cfg.Hosts,
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	switch cfg.AuthType {
	case "basic":
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	case "api_key":
		esCfg.APIKey = cfg.APIKey
	case "bearer":
		esCfg.Header = http.Header{"Authorization": []string{"Bearer " + cfg.Token}}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return &ESSink{client: client, index: cfg.Index}, nil
}

// Run starts the periodic publish loop; returns when ctx is cancelled.
func (s *ESSink) Run(ctx context.Context, interval time.Duration, snap SnapshotFunc) {
	runLoop(ctx, interval, snap, s.publish, "elasticsearch")
}

func (s *ESSink) publish(doc metrics.Snapshot) error {
	var buf bytes.Buffer
	meta := map[string]interface{}{"index": map[string]interface{}{"_index": s.index}}
	if err := json.NewEncoder(&buf).Encode(meta); err != nil {
		return err
	}
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}

	res, err := s.client.Bulk(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("es bulk request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es bulk response error: %s", res.String())
	}
	logging.Debug("metrics snapshot indexed", "sink", "elasticsearch", "index", s.index)
	return nil
}
