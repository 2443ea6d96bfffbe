// Command sdstress runs the power-cycle stress loop against an emulated
// card image: power-cycle, mount, append one record, unmount, repeat.
// Every cycle is appended to SD_TEST.CSV inside the image, so the image
// can afterwards be inspected with any FAT32 tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/quenot/softsd/emu"
)

type options struct {
	image       string
	cardType    string
	cycles      int
	intervalMS  int
	freqHz      uint32
	retries     int
	retryMS     int
	maxFailures int
	aggressive  bool
	logLevel    string

	// emulation knobs
	opCondBusy int
	maxRateHz  uint32
}

func main() {
	opts := options{}

	root := &cobra.Command{
		Use:          "sdstress",
		Short:        "Stress the software SD stack with repeated power-cycle/mount/append rounds",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.image, "image", "sdcard.img", "card image file, created and formatted when missing")
	flags.StringVar(&opts.cardType, "card", "sdhc", "emulated card type: sd1, sd2 or sdhc")
	flags.IntVar(&opts.cycles, "cycles", 100, "number of test cycles to run")
	flags.IntVar(&opts.intervalMS, "interval", 0, "pause between cycles in ms")
	flags.Uint32Var(&opts.freqHz, "freq", 0, "initial bus rate in Hz, 0 keeps the default")
	flags.IntVar(&opts.retries, "retries", 3, "attempts per mount or append before the cycle fails")
	flags.IntVar(&opts.retryMS, "retry-delay", 100, "pause between retries in ms")
	flags.IntVar(&opts.maxFailures, "max-failures", 10, "consecutive failed cycles before giving up")
	flags.BoolVar(&opts.aggressive, "aggressive", true, "power-cycle and remount on every cycle instead of keeping the mount open")
	flags.StringVar(&opts.logLevel, "log-level", "info", "error, warn, info or debug")
	flags.IntVar(&opts.opCondBusy, "op-cond-busy", 3, "emulation: busy responses before the card init completes")
	flags.Uint32Var(&opts.maxRateHz, "max-rate", 0, "emulation: card stops answering above this rate, 0 for none")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func cardGeneration(name string) (emu.Generation, error) {
	switch name {
	case "sd1":
		return emu.Gen1, nil
	case "sd2":
		return emu.Gen2, nil
	case "sdhc":
		return emu.Gen2HC, nil
	default:
		return 0, fmt.Errorf("unknown card type %q", name)
	}
}

// openCard opens the image, formatting a fresh one first when the file
// does not exist yet.
func openCard(fs afero.Fs, opts options) (*emu.Card, error) {
	gen, err := cardGeneration(opts.cardType)
	if err != nil {
		return nil, err
	}

	if ok, err := afero.Exists(fs, opts.image); err != nil {
		return nil, err
	} else if !ok {
		if err := emu.FormatImage(fs, opts.image, emu.DefaultImageConfig()); err != nil {
			return nil, err
		}
	}

	card, err := emu.NewCard(fs, opts.image, gen)
	if err != nil {
		return nil, err
	}

	card.OpCondBusy = opts.opCondBusy
	card.MaxRate = opts.maxRateHz

	return card, nil
}
