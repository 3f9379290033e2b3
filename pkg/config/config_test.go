package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rlhfrun/pkg/config"
)

func setenv(key, value string) {
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(os.Unsetenv, key)
}

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("returns the defaults without a file", func() {
		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(*cfg).To(Equal(config.Default()))
		Expect(cfg.Data.TrainPath()).To(Equal(filepath.Join("./nlpcc-2023-shared-task-9/datasets", "datasets_train.jsonl")))
	})

	It("decodes the file on top of the defaults", func() {
		path := filepath.Join(dir, "rlhf.toml")
		Expect(os.WriteFile(path, []byte(`
[reward]
url = "http://rm:9000"

[data]
eval_split = "train"

[trainer]
url = "http://trainer:7000"

[trl.train]
seq_length = 256

[trl.method.gen_kwargs]
max_new_tokens = 64
`), 0o644)).To(Succeed())

		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Reward.URL).To(Equal("http://rm:9000"))
		Expect(cfg.Trainer.URL).To(Equal("http://trainer:7000"))
		Expect(cfg.Data.EvalSplit).To(Equal(config.EvalSplitTrain))
		Expect(cfg.TRL.Train.SeqLength).To(Equal(256))
		Expect(cfg.TRL.MaxPromptLength()).To(Equal(192))

		// untouched keys keep their defaults
		Expect(cfg.Reward.BatchSize).To(Equal(2))
		Expect(cfg.TRL.Train.Epochs).To(Equal(3))
	})

	It("fails on a missing file", func() {
		_, err := config.Load(filepath.Join(dir, "missing.toml"))
		Expect(err).To(HaveOccurred())
	})

	It("lets the environment override the file", func() {
		setenv(config.EnvRewardURL, "http://env-rm")
		setenv(config.EnvTrainerURL, "http://env-trainer")
		setenv(config.EnvListen, ":9999")
		setenv(config.EnvLedger, "/tmp/ledger.sqlite")
		setenv(config.EnvDataDir, "/data")
		setenv(config.EnvMaxRecords, "0")

		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Reward.URL).To(Equal("http://env-rm"))
		Expect(cfg.Trainer.URL).To(Equal("http://env-trainer"))
		Expect(cfg.Server.ListenAddr).To(Equal(":9999"))
		Expect(cfg.Server.LedgerPath).To(Equal("/tmp/ledger.sqlite"))
		Expect(cfg.Data.DevPath()).To(Equal("/data/datasets_dev.jsonl"))
		Expect(cfg.Data.MaxRecords).To(Equal(0))
	})

	It("rejects a malformed record cap", func() {
		setenv(config.EnvMaxRecords, "lots")

		_, err := config.Load("")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Validate", func() {
	var cfg config.Config

	BeforeEach(func() {
		cfg = config.Default()
	})

	It("accepts the defaults", func() {
		Expect(cfg.Validate(false)).To(Succeed())
	})

	It("requires a trainer url when training", func() {
		Expect(cfg.Validate(true)).NotTo(Succeed())

		cfg.Trainer.URL = "http://trainer"
		Expect(cfg.Validate(true)).To(Succeed())
	})

	It("rejects a sequence too short for the prompt", func() {
		cfg.TRL.Train.SeqLength = 55
		Expect(cfg.Validate(false)).NotTo(Succeed())
	})

	It("rejects a zero batch size", func() {
		cfg.Reward.BatchSize = 0
		Expect(cfg.Validate(false)).NotTo(Succeed())
	})

	It("accepts the train split for evaluation", func() {
		Expect(cfg.Data.EvalSplit).To(Equal(config.EvalSplitDev))
		cfg.Data.EvalSplit = config.EvalSplitTrain
		Expect(cfg.Validate(false)).To(Succeed())
	})

	It("rejects an unknown eval split", func() {
		cfg.Data.EvalSplit = "test"
		Expect(cfg.Validate(false)).NotTo(Succeed())
	})
})
