package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/bodgit/plumbing"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/gcwii/rvth"
	"github.com/gcwii/rvth/wad"
	"github.com/gcwii/rvth/wii"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var fs = afero.NewOsFs()

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func progressBar(verbose bool, total uint32) rvth.Progress {
	if !verbose || total == 0 {
		return nil
	}
	pb := progressbar.DefaultBytes(int64(total) * int64(rvth.LBASize))
	return func(state *rvth.ProgressState) bool {
		_ = pb.Set64(int64(state.LBAProcessed) * int64(rvth.LBASize))
		return true
	}
}

// displayTitle renders a bank's game title for terminal output. Japanese
// discs store Shift-JIS bytes in the title field; everything else is plain
// ASCII and passes through untouched.
func displayTitle(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	decoded, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), s)
	if err != nil {
		return s
	}
	return decoded
}

func list(path string) error {
	eng, err := rvth.Open(fs, path)
	if err != nil {
		return err
	}
	defer eng.Close()

	for i := uint32(0); i < eng.BankCount(); i++ {
		e, err := eng.Bank(i)
		if err != nil {
			return err
		}
		flag := ""
		if e.IsDeleted {
			flag = " [deleted]"
		}
		fmt.Printf("%2d: %-28s %-12s%s\n", i, displayTitle(e.GameName), e.Type, flag)
	}
	return nil
}

func info(path string, bank int) error {
	eng, err := rvth.Open(fs, path)
	if err != nil {
		return err
	}
	defer eng.Close()

	e, err := eng.Bank(uint32(bank))
	if err != nil {
		return err
	}

	fmt.Printf("Type:          %s\n", e.Type)
	fmt.Printf("Game:          %s\n", displayTitle(e.GameName))
	fmt.Printf("Region:        %s\n", e.RegionCode)
	fmt.Printf("Crypto:        %s\n", e.CryptoType)
	fmt.Printf("Ticket sig:    %s\n", e.SigStatusTicket)
	fmt.Printf("TMD sig:       %s\n", e.SigStatusTMD)
	if e.TimestampUnix >= 0 {
		fmt.Printf("Timestamp:     %s\n", time.Unix(e.TimestampUnix, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

// extractStdout streams a bank's raw LBAs to standard output, optionally
// teeing the stream through a progress bar.
func extractStdout(eng *rvth.Engine, bank uint32, verbose bool) error {
	e, err := eng.Bank(bank)
	if err != nil {
		return err
	}
	r := e.Reader()
	if r == nil {
		return fmt.Errorf("bank %d holds no image", bank)
	}

	w := plumbing.NopWriteCloser(os.Stdout)
	if verbose {
		pb := progressbar.DefaultBytes(int64(r.LBALen()) * int64(rvth.LBASize))
		w = plumbing.MultiWriteCloser(w, plumbing.NopWriteCloser(pb))
	}
	defer w.Close()

	const chunkLBAs = 2048
	buf := make([]byte, chunkLBAs*rvth.LBASize)
	for lba := uint32(0); lba < r.LBALen(); {
		n := uint32(chunkLBAs)
		if remaining := r.LBALen() - lba; remaining < n {
			n = remaining
		}
		if _, err := r.ReadLBA(buf[:int64(n)*rvth.LBASize], lba, n); err != nil {
			return err
		}
		if _, err := w.Write(buf[:int64(n)*rvth.LBASize]); err != nil {
			return err
		}
		lba += n
	}
	return nil
}

func extractCmd(path string, bank int, dest string, recrypt string, sdkHeader bool, verbose bool) error {
	eng, err := rvth.Open(fs, path)
	if err != nil {
		return err
	}
	defer eng.Close()

	key, err := parseCryptoType(recrypt)
	if err != nil {
		return err
	}

	if dest == "-" {
		if key != rvth.RecryptAuto || sdkHeader {
			return fmt.Errorf("recrypt and sdk-header are not supported when streaming to stdout")
		}
		return extractStdout(eng, uint32(bank), verbose)
	}

	var flags rvth.ExtractFlags
	if sdkHeader {
		flags |= rvth.ExtractPrependSDKHeader
	}

	e, err := eng.Bank(uint32(bank))
	if err != nil {
		return err
	}
	progress := progressBar(verbose, e.LBALen)

	out, err := rvth.Extract(fs, eng, uint32(bank), dest, key, flags, progress)
	if err != nil {
		return err
	}
	return out.Close()
}

func importCmd(path string, bank int, src string, verbose bool) error {
	eng, err := rvth.Open(fs, path)
	if err != nil {
		return err
	}
	defer eng.Close()

	fi, err := fs.Stat(src)
	if err != nil {
		return err
	}
	progress := progressBar(verbose, uint32(fi.Size()/int64(rvth.LBASize)))

	return rvth.Import(fs, eng, uint32(bank), src, progress)
}

func deleteBank(path string, bank int, undo bool) error {
	eng, err := rvth.Open(fs, path)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.MakeWritable(); err != nil {
		return err
	}
	if undo {
		return eng.UndeleteBank(uint32(bank))
	}
	return eng.DeleteBank(uint32(bank))
}

func recryptCmd(path string, bank int, recrypt string) error {
	eng, err := rvth.Open(fs, path)
	if err != nil {
		return err
	}
	defer eng.Close()

	key, err := parseCryptoType(recrypt)
	if err != nil {
		return err
	}
	if key == rvth.RecryptAuto {
		key = wii.CryptoDebug
	}

	e, err := eng.Bank(uint32(bank))
	if err != nil {
		return err
	}
	if err := eng.MakeWritable(); err != nil {
		return err
	}
	return rvth.RecryptPartitions(e, key)
}

func wadInfo(path string, verify bool) error {
	info, err := wad.ReadInfo(fs, path, verify)
	if err != nil {
		return err
	}

	fmt.Printf("Type:          %s\n", info.Layout.TypeString())
	fmt.Printf("Title ID:      %016x\n", info.TitleID)
	if info.GameID != "" {
		fmt.Printf("Game ID:       %s\n", info.GameID)
	}
	fmt.Printf("Crypto:        %s\n", info.CryptoType)
	fmt.Printf("Ticket sig:    %s\n", info.SigStatusTicket)
	fmt.Printf("TMD sig:       %s\n", info.SigStatusTMD)
	if info.HasIOSVer {
		fmt.Printf("IOS version:   %d\n", info.IOSVer)
	}
	failed := 0
	for _, c := range info.Contents {
		if !verify {
			fmt.Printf("  content %d (%d bytes)\n", c.Index, c.Size)
			continue
		}
		status := "SHA-1 OK"
		if !c.Verified {
			status = fmt.Sprintf("ERROR: %v", c.VerifyErr)
			failed++
		}
		fmt.Printf("  content %d (%d bytes): %s\n", c.Index, c.Size, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d content(s) failed verification", failed)
	}
	return nil
}

func wadResign(src, dest, recrypt string) error {
	key, err := parseCryptoType(recrypt)
	if err != nil {
		return err
	}
	if key == rvth.RecryptAuto {
		key = wii.CryptoUnknown // let Resign pick wad.DefaultRecryptKey
	}
	_, err = wad.Resign(fs, src, dest, key)
	return err
}

func parseCryptoType(s string) (wii.CryptoType, error) {
	switch s {
	case "", "auto":
		return rvth.RecryptAuto, nil
	case "none":
		return wii.CryptoNone, nil
	case "debug":
		return wii.CryptoDebug, nil
	case "retail":
		return wii.CryptoRetail, nil
	case "korean":
		return wii.CryptoKorean, nil
	case "vwii":
		return wii.CryptoVWii, nil
	default:
		return wii.CryptoUnknown, fmt.Errorf("unknown crypto type %q", s)
	}
}

func bankArg(c *cli.Context, i int) (int, error) {
	s := c.Args().Get(i)
	if s == "" {
		cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
	}
	return strconv.Atoi(s)
}

func main() {
	app := cli.NewApp()

	app.Name = "rvth"
	app.Usage = "RVT-H Reader bank table and Wii WAD utility"
	app.Version = fmt.Sprintf("%s, commit %s, built at %s", version, commit, date)

	app.Commands = []*cli.Command{
		{
			Name:      "list",
			Usage:     "List every bank in an RVT-H HDD image or device",
			ArgsUsage: "IMAGE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return list(c.Args().Get(0))
			},
		},
		{
			Name:      "info",
			Usage:     "Show details about a single bank",
			ArgsUsage: "IMAGE BANK",
			Action: func(c *cli.Context) error {
				bank, err := bankArg(c, 1)
				if err != nil {
					return err
				}
				return info(c.Args().Get(0), bank)
			},
		},
		{
			Name:      "extract",
			Usage:     "Extract a bank to a standalone disc image",
			ArgsUsage: "IMAGE BANK DEST",
			Action: func(c *cli.Context) error {
				bank, err := bankArg(c, 1)
				if err != nil {
					return err
				}
				if c.Args().Get(2) == "" {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return extractCmd(c.Args().Get(0), bank, c.Args().Get(2), c.String("recrypt"), c.Bool("sdk-header"), c.Bool("verbose"))
			},
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "recrypt", Usage: "recrypt to `DOMAIN` (none|debug|retail|korean|vwii|auto)", Value: "auto"},
				&cli.BoolFlag{Name: "sdk-header", Usage: "prepend a devkit loader header"},
				&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "show a progress bar"},
			},
		},
		{
			Name:      "import",
			Usage:     "Import a standalone disc image into a bank",
			ArgsUsage: "IMAGE BANK SOURCE",
			Action: func(c *cli.Context) error {
				bank, err := bankArg(c, 1)
				if err != nil {
					return err
				}
				if c.Args().Get(2) == "" {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return importCmd(c.Args().Get(0), bank, c.Args().Get(2), c.Bool("verbose"))
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "show a progress bar"},
			},
		},
		{
			Name:      "delete",
			Usage:     "Mark a bank deleted",
			ArgsUsage: "IMAGE BANK",
			Action: func(c *cli.Context) error {
				bank, err := bankArg(c, 1)
				if err != nil {
					return err
				}
				return deleteBank(c.Args().Get(0), bank, false)
			},
		},
		{
			Name:      "undelete",
			Usage:     "Clear a bank's deleted flag",
			ArgsUsage: "IMAGE BANK",
			Action: func(c *cli.Context) error {
				bank, err := bankArg(c, 1)
				if err != nil {
					return err
				}
				return deleteBank(c.Args().Get(0), bank, true)
			},
		},
		{
			Name:      "recrypt",
			Usage:     "Recrypt a bank's Wii partitions to a different crypto domain",
			ArgsUsage: "IMAGE BANK",
			Action: func(c *cli.Context) error {
				bank, err := bankArg(c, 1)
				if err != nil {
					return err
				}
				return recryptCmd(c.Args().Get(0), bank, c.String("recrypt"))
			},
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "recrypt", Usage: "recrypt to `DOMAIN` (debug|retail|korean|vwii)", Value: "debug"},
			},
		},
		{
			Name:  "wad",
			Usage: "Wii WAD title package operations",
			Subcommands: []*cli.Command{
				{
					Name:      "info",
					Usage:     "Show details about a WAD",
					ArgsUsage: "WAD",
					Action: func(c *cli.Context) error {
						if c.NArg() < 1 {
							cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
						}
						return wadInfo(c.Args().Get(0), c.Bool("verify"))
					},
					Flags: []cli.Flag{
						&cli.BoolFlag{Name: "verify", Usage: "decrypt and verify every content's hash"},
					},
				},
				{
					Name:      "resign",
					Usage:     "Re-sign a WAD under a different crypto domain",
					ArgsUsage: "SOURCE DEST",
					Action: func(c *cli.Context) error {
						if c.NArg() < 2 {
							cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
						}
						return wadResign(c.Args().Get(0), c.Args().Get(1), c.String("recrypt"))
					},
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "recrypt", Usage: "recrypt to `DOMAIN` (debug|retail|korean|vwii)", Value: "debug"},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
