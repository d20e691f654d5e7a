package main

import (
	"errors"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/crislerwin/recurrent-lm/pkg/config"
	"github.com/crislerwin/recurrent-lm/pkg/model"
	"github.com/crislerwin/recurrent-lm/pkg/tokenizer"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults are used when empty)")
	resume := flag.Bool("resume", false, "continue from the checkpoint instead of starting over")
	samples := flag.Int("samples", 5, "number of samples to print after training")
	verbose := flag.Bool("v", false, "log every training step")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
	}

	corpus, err := tokenizer.LoadCorpus(cfg.Train.CorpusPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load corpus")
	}

	net, vocab, err := openNetwork(cfg, corpus, *resume, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create network")
	}

	log.WithFields(logrus.Fields{
		"cell":    net.Model.Cell,
		"entries": corpus.Len(),
		"vocab":   vocab.Size(),
		"steps":   net.Steps(),
	}).Info("training")

	for i := 0; i < cfg.Train.Iterations; i++ {
		ppl, err := net.TrainStep(cfg.Train.StepRate)
		if err != nil {
			log.WithError(err).Fatal("training step failed")
		}

		if cfg.Train.SampleEvery > 0 && net.Steps()%cfg.Train.SampleEvery == 0 {
			sample, err := net.Predict(cfg.Train.Temperature)
			if err != nil {
				log.WithError(err).Fatal("sampling failed")
			}
			log.WithFields(logrus.Fields{
				"step":   net.Steps(),
				"ppl":    ppl,
				"sample": sample,
			}).Info("progress")

			if cfg.Train.CheckpointPath != "" {
				if err := model.SaveCheckpoint(cfg.Train.CheckpointPath, net, vocab); err != nil {
					log.WithError(err).Error("failed to save checkpoint")
				}
			}
		}
	}

	if cfg.Train.CheckpointPath != "" {
		if err := model.SaveCheckpoint(cfg.Train.CheckpointPath, net, vocab); err != nil {
			log.WithError(err).Fatal("failed to save checkpoint")
		}
	}

	greedy, err := net.Predict(0)
	if err != nil {
		log.WithError(err).Fatal("sampling failed")
	}
	log.WithField("sample", greedy).Info("argmax")

	for i := 0; i < *samples; i++ {
		sample, err := net.Predict(cfg.Train.Temperature)
		if err != nil {
			log.WithError(err).Fatal("sampling failed")
		}
		log.WithField("sample", sample).Info("sample")
	}
}

// openNetwork resumes from the checkpoint when asked and one exists,
// and otherwise builds a fresh network over the corpus vocabulary
func openNetwork(cfg *config.Config, corpus *tokenizer.Corpus, resume bool, log *logrus.Logger) (*model.Network, *tokenizer.Tokenizer, error) {
	if resume && cfg.Train.CheckpointPath != "" {
		net, vocab, err := model.LoadCheckpoint(cfg.Train.CheckpointPath, corpus, model.WithLogger(log))
		if err == nil {
			log.WithField("path", cfg.Train.CheckpointPath).Info("resumed from checkpoint")
			return net, vocab, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		log.WithField("path", cfg.Train.CheckpointPath).Warn("no checkpoint, starting over")
	}

	vocab, err := tokenizer.FromCorpus(corpus.Entries())
	if err != nil {
		return nil, nil, err
	}
	net, err := model.NewNetwork(cfg.Model, vocab, corpus, model.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return net, vocab, nil
}
