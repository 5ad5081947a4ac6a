// The config-editor screen named as an external collaborator in spec.md §1
// ("config editor... interface only"), backed by a huh.Form. Grounded on
// jholhewres-goclaw's direct dependency on charmbracelet/huh for its own
// interactive setup prompts; this form collects provider, model, both
// hosts, num_ctx, the curator threshold and enable_thinking, and carries
// num_predict, show_tool_json and editor over from the seed config
// unchanged. The caller saves the result through config.Save.
package tui

import (
	"strconv"

	"github.com/charmbracelet/huh"

	"forgeloop/internal/config"
)

// RunConfigForm opens an interactive huh.Form seeded from cfg, returning the
// edited config on confirmation. It does not write to disk; the caller is
// responsible for persisting the result.
func RunConfigForm(cfg *config.Config) (*config.Config, error) {
	provider := cfg.Provider
	model := cfg.Model
	ollamaHost := cfg.OllamaHost
	lmstudioHost := cfg.LMStudioHost
	numCtx := strconv.Itoa(cfg.NumCtx)
	threshold := strconv.Itoa(cfg.FileReadSmallThreshold)
	enableThinking := cfg.EnableThinking

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(huh.NewOption("ollama", "ollama"), huh.NewOption("lmstudio", "lmstudio")).
				Value(&provider),
			huh.NewInput().Title("Model").Value(&model),
			huh.NewInput().Title("Ollama host").Value(&ollamaHost),
			huh.NewInput().Title("LM Studio host").Value(&lmstudioHost),
			huh.NewInput().Title("Context window (num_ctx)").Value(&numCtx),
			huh.NewInput().Title("Curator threshold (lines)").Value(&threshold),
			huh.NewConfirm().Title("Enable thinking stream").Value(&enableThinking),
		),
	)

	if err := form.Run(); err != nil {
		return nil, err
	}

	out := *cfg
	out.Provider = provider
	out.Model = model
	out.OllamaHost = ollamaHost
	out.LMStudioHost = lmstudioHost
	out.EnableThinking = enableThinking
	if n, err := strconv.Atoi(numCtx); err == nil {
		out.NumCtx = n
	}
	if n, err := strconv.Atoi(threshold); err == nil {
		out.FileReadSmallThreshold = n
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
