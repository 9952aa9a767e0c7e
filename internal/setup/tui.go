package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/config"
	"github.com/vadiminshakov/verdict/internal/agents"
	"github.com/vadiminshakov/verdict/internal/domain"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// GeneratedConfigFile is where the wizard writes its result.
const GeneratedConfigFile = "config.gen.yaml"

// RunTUI launches the terminal configuration wizard and writes the result
// to config.gen.yaml.
func RunTUI() error {
	var (
		mode       string
		pairStr    string
		epochStr   string
		balanceStr string
		liveAgents []string
		shadows    bool
		tgToken    string
		tgChatID   string
		confirm    bool
	)

	// defaults
	pairStr = "BTC_USDT"
	epochStr = "5m"
	balanceStr = "1000"
	liveAgents = []string{agents.AgentMomentum, agents.AgentMeanRevert, agents.AgentVelocity}
	shadows = true

	// step 1: welcome + mode
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("VERDICT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your decision pipeline running.\n"))

	fmt.Println(stepStyle.Render("STEP 1: MODE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Trading mode").
				Options(
					huh.NewOption("Paper (simulated feed, no real orders)", config.ModePaper),
					huh.NewOption("Live (exchange feeds, real execution)", config.ModeLive),
				).
				Value(&mode),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: market
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VERDICT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: MARKET"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("Must contain underscore (e.g. BTC_USDT)").
				Value(&pairStr).
				Validate(func(s string) error {
					_, err := domain.ParsePair(s)
					return err
				}),
			huh.NewInput().
				Title("Epoch Duration").
				Description("How long each prediction round lasts (e.g. 1m, 5m, 15m)").
				Value(&epochStr).
				Validate(func(s string) error {
					d, err := time.ParseDuration(s)
					if err != nil {
						return err
					}
					if d < time.Minute {
						return fmt.Errorf("epoch must be at least 1m")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: bankroll
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VERDICT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: BANKROLL"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Initial Balance").
				Description("Quote currency amount each account starts with").
				Value(&balanceStr).
				Validate(validateBalance),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: agents
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VERDICT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: AGENTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Agents for the live strategy").
				Options(
					huh.NewOption("Momentum (EMA/RSI trend)", agents.AgentMomentum),
					huh.NewOption("Mean Revert (fade RSI extremes)", agents.AgentMeanRevert),
					huh.NewOption("Velocity (short window rate of change)", agents.AgentVelocity),
					huh.NewOption("Book Pressure (order book imbalance)", agents.AgentBookPressure),
					huh.NewOption("MACD Cross", agents.AgentMACDCross),
				).
				Value(&liveAgents).
				Validate(func(selected []string) error {
					if len(selected) == 0 {
						return fmt.Errorf("select at least one agent")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Run shadow strategy variants alongside?").
				Description("Shadows trade paper accounts against the same events for comparison").
				Value(&shadows),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 5: notifications
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VERDICT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 5: NOTIFICATIONS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram Bot Token").
				Description("Leave empty to disable notifications").
				Value(&tgToken).
				EchoMode(huh.EchoModePassword),
			huh.NewInput().
				Title("Telegram Chat ID").
				Value(&tgChatID),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VERDICT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Mode: %s\nPair: %s\nEpoch: %s\nBalance: %s\nAgents: %v\nShadows: %t\n",
		mode, pairStr, epochStr, balanceStr, liveAgents, shadows,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	epoch, _ := time.ParseDuration(epochStr)

	cfg := config.Default()
	cfg.Mode = mode
	cfg.PairStr = pairStr
	cfg.Epoch = epoch
	cfg.InitialBalance = balanceStr
	cfg.Strategies = buildStrategies(liveAgents, shadows)
	if tgToken != "" {
		cfg.Telegram = config.Telegram{Token: tgToken, ChatID: tgChatID}
	}
	if mode == config.ModeLive {
		cfg.Sources.Hyperliquid = true
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(GeneratedConfigFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", GeneratedConfigFile)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// buildStrategies emits the live strategy plus, optionally, two shadow
// variants with shifted gates so the promoter has candidates to compare.
func buildStrategies(liveAgents []string, shadows bool) []domain.StrategyConfig {
	live := domain.StrategyConfig{
		Name:                   "live",
		Live:                   true,
		ConsensusThreshold:     0.55,
		MinAgreement:           0.6,
		MinAgentConfidence:     0.1,
		SoloConfidenceOverride: 0.85,
		Agents:                 liveAgents,
		Sizing:                 domain.SizingPolicy{Kind: domain.SizingTiered, MaxPercent: 5},
	}
	out := []domain.StrategyConfig{live}
	if !shadows {
		return out
	}

	strict := live
	strict.Name = "shadow-strict"
	strict.Live = false
	strict.ConsensusThreshold = 0.7
	strict.MinAgreement = 0.75

	kelly := live
	kelly.Name = "shadow-kelly"
	kelly.Live = false
	kelly.Sizing = domain.SizingPolicy{
		Kind:          domain.SizingKelly,
		KellyFraction: 0.25,
		MinPercent:    0.5,
		MaxPercent:    10,
	}

	return append(out, strict, kelly)
}

func validateBalance(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}
