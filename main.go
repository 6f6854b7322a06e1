// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// pack an EC binary into a MEC1322 SPI flash image
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type target struct {
	name         string
	maker        func(tg *target) error
	output       string
	def          bool
	dependencies []*target
	once         sync.Once
	err          error
}

// flags that map onto packConfig keys; only those set on the command line
// override the config file and environment.
var configFlags = map[string]bool{
	"input":          true,
	"output":         true,
	"header_key":     true,
	"payload_key":    true,
	"spi_size":       true,
	"header_loc":     true,
	"payload_offset": true,
	"chip_select":    true,
	"spi_clock":      true,
	"spi_read_cmd":   true,
	"signer":         true,
}

var (
	def = defaultConfig()

	configFlag = flag.String("config", "",
		"config file (default ./ecpack.{yaml,toml,json,env} if present)")
	_ = flag.String("input", def.Input,
		"EC binary to pack, usually ec.bin or ec.RO.flat.")
	_ = flag.String("output", def.Output,
		"Output flash binary file")
	_ = flag.String("header_key", def.HeaderKey,
		"PEM key file for signing header")
	_ = flag.String("payload_key", def.PayloadKey,
		"PEM key file for signing payload")
	_ = flag.Int("spi_size", def.SpiSize,
		"Size of the SPI flash in KB")
	_ = flag.Int("header_loc", def.HeaderLoc,
		"Location of header in SPI flash")
	_ = flag.Int("payload_offset", def.PayloadOffset,
		"The offset of payload from the header")
	_ = flag.Int("chip_select", def.ChipSelect,
		"Chip select signal to use, either 0 or 1.")
	_ = flag.Int("spi_clock", def.SpiClock,
		"SPI clock speed. 8, 12, 24, or 48 MHz.")
	_ = flag.Int("spi_read_cmd", def.SpiReadCmd,
		"SPI read command. 0x3, 0xB, or 0x3B.")
	_ = flag.String("signer", def.Signer,
		"signing backend, openssl or rsa")
	nFlag = flag.Bool("n", false,
		"pack and report the layout but do not write any file.")
	zFlag = flag.Bool("z", false, "print 'ecpack' commands.")
)

// packer carries one run: the config, the signer and, once the image
// target has been made, the packed image.
type packer struct {
	config  *packConfig
	signer  signer
	built   time.Time
	packed  *packedImage
	targets []*target
}

func newPacker(c *packConfig, s signer) *packer {
	pk := &packer{config: c, signer: s, built: time.Now()}
	stem := c.outputStem()

	image := &target{
		name:   "image",
		maker:  pk.makeImage,
		output: c.Output,
		def:    true,
	}
	hex := &target{
		name:   "hex",
		maker:  pk.makeHex,
		output: stem + ".hex",
	}
	manifest := &target{
		name:   "manifest",
		maker:  pk.makeManifest,
		output: stem + ".json",
	}
	bundle := &target{
		name:   "bundle",
		maker:  pk.makeBundle,
		output: stem + ".cpio",
	}

	// Set up dependencies after all targets exist.
	hex.dependencies = []*target{image}
	manifest.dependencies = []*target{image}
	bundle.dependencies = []*target{image}

	pk.targets = []*target{image, hex, manifest, bundle}
	return pk
}

func (pk *packer) target(name string) (*target, bool) {
	for _, t := range pk.targets {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// selectTargets maps command line arguments to targets. No argument means
// the default targets; "all" means every target.
func (pk *packer) selectTargets(args []string) ([]*target, error) {
	tgs := make([]*target, 0)
	switch {
	case len(args) == 0:
		for _, t := range pk.targets {
			if t.def {
				tgs = append(tgs, t)
			}
		}
	case args[0] == "all":
		tgs = pk.targets
	default:
		for _, name := range args {
			tg, p := pk.target(name)
			if !p {
				return nil, fmt.Errorf("unknown target %s", name)
			}
			tgs = append(tgs, tg)
		}
	}
	return tgs, nil
}

// makeTargets builds each target once, dependencies first. Targets run
// one after another; the image target does all the signing.
func makeTargets(parent string, targets []*target) error {
	for _, tg := range targets {
		tg.once.Do(func() {
			log := logrus.WithField("target", tg.name)
			if parent != "" {
				log = log.WithField("for", parent)
			}
			log.Info("making")
			if tg.err = makeTargets(tg.name, tg.dependencies); tg.err != nil {
				return
			}
			if tg.err = tg.maker(tg); tg.err != nil {
				tg.err = errors.Wrapf(tg.err, "making %s", tg.name)
				return
			}
			log.WithField("output", tg.output).Info("done")
		})
		if tg.err != nil {
			return tg.err
		}
	}
	return nil
}

func (pk *packer) makeImage(tg *target) (err error) {
	if pk.packed, err = packImage(pk.config, pk.signer); err != nil {
		return
	}
	return writeFile(tg.output, pk.packed.data)
}

func (pk *packer) makeHex(tg *target) error {
	data, err := pk.packed.intelHex()
	if err != nil {
		return err
	}
	return writeFile(tg.output, data)
}

func (pk *packer) makeManifest(tg *target) error {
	data, err := pk.packed.manifest(pk.built)
	if err != nil {
		return err
	}
	return writeFile(tg.output, data)
}

func (pk *packer) makeBundle(tg *target) error {
	data, err := pk.packed.bundle(pk.built)
	if err != nil {
		return err
	}
	return writeFile(tg.output, data)
}

// flagOverrides returns the config flags given on the command line.
func flagOverrides() map[string]interface{} {
	overrides := map[string]interface{}{}
	flag.Visit(func(f *flag.Flag) {
		if !configFlags[f.Name] {
			return
		}
		if g, ok := f.Value.(flag.Getter); ok {
			overrides[f.Name] = g.Get()
		}
	})
	return overrides
}

func main() {
	flag.Usage = usage
	flag.Parse()
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *zFlag {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(*configFlag, flagOverrides())
	if err != nil {
		logrus.Fatal(err)
	}
	if err = cfg.validate(); err != nil {
		logrus.Fatal(err)
	}
	pk := newPacker(cfg, newSigner(cfg.Signer))
	tgs, err := pk.selectTargets(flag.Args())
	if err != nil {
		logrus.Fatal(err)
	}
	if err = makeTargets("", tgs); err != nil {
		logrus.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:", os.Args[0],
		"[ OPTION... ] [ TARGET... | all ]")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
	pk := newPacker(&def, nil)
	fmt.Fprintln(os.Stderr, "\nDefault Targets:")
	for _, t := range pk.targets {
		if t.def {
			fmt.Fprint(os.Stderr, "\t", t.name, "\n")
		}
	}
	fmt.Fprintln(os.Stderr, "\n\"all\" Targets:")
	for _, t := range pk.targets {
		fmt.Fprint(os.Stderr, "\t", t.name, "\t", t.output, "\n")
	}
}

func logHex(v uint32) string {
	return fmt.Sprintf("0x%x", v)
}

// logCommand echoes a command at debug level, quoting arguments with spaces.
func logCommand(args ...string) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	var sb strings.Builder
	sb.WriteString("#")
	for _, arg := range args {
		format := " %s"
		if strings.ContainsAny(arg, " \t") {
			format = " %q"
		}
		fmt.Fprintf(&sb, format, arg)
	}
	logrus.Debug(sb.String())
}

// writeFile writes name.tmp and renames it into place; the temporary is
// removed if anything fails. With -n nothing is written.
func writeFile(name string, data []byte) (err error) {
	tmp := name + ".tmp"
	logCommand("write", tmp, fmt.Sprint(len(data)))
	if *nFlag {
		return nil
	}
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	defer func() {
		if err == nil {
			err = mv(tmp, name)
		}
		if err != nil {
			rm(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		f.Close()
		return
	}
	err = f.Close()
	return
}

func mv(from, to string) error {
	logCommand("mv", from, to)
	return os.Rename(from, to)
}

func rm(fns ...string) error {
	logCommand(append([]string{"rm"}, fns...)...)
	for _, fn := range fns {
		if err := os.Remove(fn); err != nil {
			return err
		}
	}
	return nil
}

func command(name string, args ...string) *exec.Cmd {
	logCommand(append([]string{name}, args...)...)
	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	return cmd
}

// commandOutput runs name and returns its stdout; stderr is folded into
// the error.
func commandOutput(name string, args ...string) (string, error) {
	cmd := command(name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.Wrap(err, msg)
		}
		return "", errors.Wrap(err, name)
	}
	return string(out), nil
}

func commandRun(name string, args ...string) error {
	_, err := commandOutput(name, args...)
	return err
}
