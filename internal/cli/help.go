package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// walkCommands visits every command in the tree depth-first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// enrichParentLong lists a parent command's visible subcommands at the end of
// its Long description, under the parent's group titles when it declares any,
// followed by a pointer to per-subcommand help. The root is skipped because
// cobra already renders its groups.
func enrichParentLong(cmd *cobra.Command) {
	if !cmd.HasSubCommands() || cmd == rootCmd {
		return
	}

	sections := map[string][]*cobra.Command{}
	width := 0
	for _, sub := range cmd.Commands() {
		if !sub.IsAvailableCommand() {
			continue
		}
		sections[sub.GroupID] = append(sections[sub.GroupID], sub)
		width = max(width, len(sub.Name()))
	}
	if len(sections) == 0 {
		return
	}

	blocks := []string{strings.TrimRight(cmd.Long, "\n")}
	for _, g := range cmd.Groups() {
		blocks = appendSection(blocks, g.Title, sections[g.ID], width)
	}
	blocks = appendSection(blocks, "Subcommands:", sections[""], width)
	blocks = append(blocks, fmt.Sprintf("Run '%s <subcommand> --help' for details.\n", cmd.CommandPath()))
	cmd.Long = strings.Join(blocks, "\n\n")
}

func appendSection(blocks []string, title string, cmds []*cobra.Command, width int) []string {
	if len(cmds) == 0 {
		return blocks
	}
	lines := []string{title}
	for _, c := range cmds {
		lines = append(lines, fmt.Sprintf("  %-*s  %s", width, c.Name(), c.Short))
	}
	return append(blocks, strings.Join(lines, "\n"))
}
