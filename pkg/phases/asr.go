package phases

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dubflow/dubflow/pkg/asr"
	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/objstore"
	"github.com/dubflow/dubflow/pkg/pipeline"
)

// ASR transcribes the vocal stem through the file-recognition API. The
// recognizer fetches audio by URL, so the stem is downmixed to 16 kHz
// mono, published to the object store, and submitted as a presigned link.
// The provider-raw response is the artifact; nothing is reshaped here.
type ASR struct {
	Log *slog.Logger
}

func (p *ASR) Name() string       { return NameASR }
func (p *ASR) Version() string    { return "1.0" }
func (p *ASR) Requires() []string { return []string{"sep.vocals"} }
func (p *ASR) Provides() []string { return []string{"asr.raw_response"} }

func (p *ASR) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	vocalsPath, err := inputPath(rc, inputs, "sep.vocals")
	if err != nil {
		return nil, err
	}

	monoPath := filepath.Join(rc.Workspace, "audio", "vocals-16k.wav")
	if err := media.Downmix16K(vocalsPath, monoPath); err != nil {
		return nil, fmt.Errorf("downmix vocals: %w", err)
	}

	storeCfg, err := objstore.LoadConfig()
	if err != nil {
		return nil, err
	}
	store, err := objstore.New(storeCfg)
	if err != nil {
		return nil, err
	}
	prefix := rc.Config.Str(NameASR, "upload_prefix", pipeline.EpisodeStem(rc.Workspace))
	key, url, err := store.Publish(ctx, monoPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("publish vocals: %w", err)
	}
	p.Log.Info("vocals published", "key", key)

	appID, accessKey, err := doubaoCreds()
	if err != nil {
		return nil, err
	}
	client := asr.NewClient(appID, accessKey)

	hotwords := splitList(rc.Config.Str(NameASR, "hotwords", ""))
	req := &asr.Request{
		Audio: asr.AudioConfig{
			URL:      url,
			Format:   asr.GuessAudioFormat(url),
			Language: rc.Config.Str(NameASR, "language", ""),
			Rate:     16000,
			Bits:     16,
			Channel:  1,
		},
		Request: asr.VADSpeakerConfig(hotwords),
	}

	opts := asr.PollOptions{
		Interval: time.Duration(rc.Config.Int(NameASR, "poll_interval_s", 2)) * time.Second,
		MaxWait:  time.Duration(rc.Config.Int(NameASR, "max_wait_s", 3600)) * time.Second,
	}
	body, parsed, err := client.SubmitAndPoll(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	outPath, err := outputs.Path("asr.raw_response")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicWrite(body, outPath); err != nil {
		return nil, err
	}

	utts := 0
	if parsed != nil && parsed.Result != nil {
		utts = len(parsed.Result.Utterances)
	}
	if utts == 0 {
		return nil, fmt.Errorf("recognizer returned no utterances")
	}

	return &pipeline.Result{
		Outputs: []string{"asr.raw_response"},
		Metrics: map[string]any{"utterances": utts, "audio_key": key},
	}, nil
}
