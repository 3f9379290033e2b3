package traincmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofiber/adaptor/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/rlhfrun/pkg/ledger"
	"github.com/papercomputeco/rlhfrun/pkg/reward"
	"github.com/papercomputeco/rlhfrun/pkg/trainer"
	"github.com/papercomputeco/rlhfrun/rmserver"
	"github.com/papercomputeco/rlhfrun/server"
)

const trainSplit = `{"query": "今天天气怎么样", "replys": [{"reply": "晴天", "like": 3, "dislike": 1}]}
{"query": "讲个笑话", "replys": [{"reply": "好的", "like": 2, "dislike": 0}]}
`

const devSplit = `{"query": "你好", "replys": [{"reply": "你好呀", "like": 1, "dislike": 0}]}
`

// fakeTrainer accepts a job and, when polled, plays one rollout round
// against the job's reward callback.
type fakeTrainer struct {
	mu      sync.Mutex
	job     *trainer.Job
	samples func(job *trainer.Job) []string
	rewards []float64
}

func (f *fakeTrainer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/jobs":
		var job trainer.Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.job = &job
		_ = json.NewEncoder(w).Encode(trainer.Status{ID: "job-1", State: trainer.StateQueued})
	case r.Method == http.MethodGet && r.URL.Path == "/jobs/job-1":
		_ = json.NewEncoder(w).Encode(f.rollout())
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTrainer) rollout() trainer.Status {
	body, _ := json.Marshal(server.RewardRequest{Samples: f.samples(f.job)})
	resp, err := http.Post(f.job.RewardURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return trainer.Status{ID: "job-1", State: trainer.StateFailed, Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return trainer.Status{
			ID:    "job-1",
			State: trainer.StateFailed,
			Error: fmt.Sprintf("reward callback returned %d: %s", resp.StatusCode, raw),
		}
	}

	var out server.RewardResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return trainer.Status{ID: "job-1", State: trainer.StateFailed, Error: err.Error()}
	}
	f.rewards = out.Rewards
	return trainer.Status{ID: "job-1", State: trainer.StateSucceeded, Step: 1, OutputDir: f.job.OutputDir}
}

var _ = Describe("Train Command", func() {
	var (
		ctx     context.Context
		dataDir string
		rm      *httptest.Server
		fake    *fakeTrainer
		ts      *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		dataDir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dataDir, "datasets_train.jsonl"), []byte(trainSplit), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dataDir, "datasets_dev.jsonl"), []byte(devSplit), 0o644)).To(Succeed())

		rm = httptest.NewServer(adaptor.FiberApp(rmserver.New(reward.NewMockModel(), zap.NewNop()).App()))
		fake = &fakeTrainer{
			samples: func(job *trainer.Job) []string {
				return []string{
					job.Prompts[0] + "多云",
					job.EvalPrompts[0] + "你好呀",
				}
			},
		}
		ts = httptest.NewServer(fake)
	})

	AfterEach(func() {
		ts.Close()
		rm.Close()
	})

	execute := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewTrainCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{
			"--data-dir", dataDir,
			"--trainer-url", ts.URL,
			"--reward-url", rm.URL,
			"--listen", "127.0.0.1:0",
			"--skip-checkpoint",
		}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("trains on the train split and evaluates on the dev split", func() {
		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Training job job-1 succeeded"))
		Expect(out).To(ContainSubstring(trainer.DefaultOutputDir))

		Expect(fake.job).NotTo(BeNil())
		Expect(fake.job.RunID).NotTo(BeEmpty())
		Expect(fake.job.Prompts).To(Equal([]string{
			"用户:今天天气怎么样#小爱同学:",
			"用户:讲个笑话#小爱同学:",
		}))
		Expect(fake.job.EvalPrompts).To(Equal([]string{"用户:你好#小爱同学:"}))
		Expect(fake.job.Config.Train.SeqLength).To(Equal(128))

		Expect(fake.rewards).To(HaveLen(2))
		// the dev rollout repeats its reference reply exactly
		Expect(fake.rewards[1]).To(BeNumerically("~", 0, 1e-9))
	})

	It("evaluates on the train split when asked", func() {
		_, err := execute("--eval-split", "train")
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.job.EvalPrompts).To(Equal(fake.job.Prompts))
	})

	It("rejects an unknown eval split", func() {
		_, err := execute("--eval-split", "test")
		Expect(err).To(MatchError(ContainSubstring("eval_split")))
		Expect(fake.job).To(BeNil())
	})

	It("records every scored rollout in the ledger", func() {
		ledgerPath := filepath.Join(dataDir, "rollouts.sqlite")
		_, err := execute("--ledger", ledgerPath)
		Expect(err).NotTo(HaveOccurred())

		s, err := ledger.NewSQLiteStorer(ledgerPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		roots, err := s.Roots(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(HaveLen(2))

		nodes, err := s.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(4))
	})

	It("fails the run when a rollout prompt has no reference", func() {
		fake.samples = func(*trainer.Job) []string {
			return []string{"用户:没见过#小爱同学:随便"}
		}

		_, err := execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("422"))
	})

	It("requires a trainer url", func() {
		cmd := NewTrainCmd()
		cmd.SetArgs([]string{"--data-dir", dataDir, "--skip-checkpoint"})
		Expect(cmd.ExecuteContext(ctx)).NotTo(Succeed())
	})
})
