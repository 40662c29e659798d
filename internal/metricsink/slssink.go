package metricsink

import (
	"context"
	"fmt"
	"time"

	sls "github.com/aliyun/aliyun-log-go-sdk"
	"github.com/bytedance/sonic"

	"github.com/ebwi11/patterncache/internal/logging"
	"github.com/ebwi11/patterncache/internal/metrics"
)

// SLSConfig configures the Aliyun SLS metrics-snapshot sink. The teacher
// only ever consumes from SLS (src/common/aliyun_sls.go's AliyunSLSConsumer
// via consumerLibrary); this sink is the producer half of the same SDK,
// using the plain sls.Client the consumer's own TestAliyunSLSConnection
// builds via sls.CreateNormalInterface.
type SLSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Project         string
	Logstore        string
	Interval        time.Duration
}

// SLSSink publishes the metrics snapshot document to an Aliyun SLS logstore
// as a single log entry per tick, with the whole JSON document carried in
// one field.
type SLSSink struct {
	client   sls.ClientInterface
	project  string
	logstore string
}

// NewSLSSink builds the SLS client the way
// aliyun_sls.go#TestAliyunSLSConnection does (sls.CreateNormalInterface with
// no security token), then confirms the target logstore exists before the
// sink is handed back to the caller.
func NewSLSSink(cfg SLSConfig) (*SLSSink, error) {
	client := sls.CreateNormalInterface(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret, "")
	if _, err := client.CheckLogstoreExist(cfg.Project, cfg.Logstore); err != nil {
		return nil, fmt.Errorf("sls logstore check failed: %w", err)
	}
	return &SLSSink{client: client, project: cfg.Project, logstore: cfg.Logstore}, nil
}

// Run starts the periodic publish loop; returns when ctx is cancelled.
func (s *SLSSink) Run(ctx context.Context, interval time.Duration, snap SnapshotFunc) {
	runLoop(ctx, interval, snap, s.publish, "aliyun_sls")
}

func (s *SLSSink) publish(doc metrics.Snapshot) error {
	body, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	now := uint32(time.Now().Unix())
	key := "snapshot"
	value := string(body)
	logGroup := &sls.LogGroup{
		Logs: []*sls.Log{
			{
				Time: &now,
				Contents: []*sls.LogContent{
					{Key: &key, Value: &value},
				},
			},
		},
	}

	if err := s.client.PutLogs(s.project, s.logstore, logGroup); err != nil {
		return fmt.Errorf("sls put logs failed: %w", err)
	}
	logging.Debug("metrics snapshot published", "sink", "aliyun_sls", "logstore", s.logstore)
	return nil
}
