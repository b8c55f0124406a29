package slack

import (
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/audittrail/internal/messenger"
)

// maxSectionFields is the Block Kit limit of fields per section block.
const maxSectionFields = 10

// BuildNoticeBlocks builds Slack Block Kit blocks for a notice: a title
// section, field sections of at most ten fields each, and a context footer.
func BuildNoticeBlocks(n messenger.Notice) []slacklib.Block {
	blocks := []slacklib.Block{
		slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, n.Title, false, false),
			nil,
			nil,
		),
	}

	for start := 0; start < len(n.Fields); start += maxSectionFields {
		end := min(start+maxSectionFields, len(n.Fields))

		fields := make([]*slacklib.TextBlockObject, 0, end-start)
		for _, f := range n.Fields[start:end] {
			text := fmt.Sprintf("*%s*\n%s", f.Label, f.Value)
			fields = append(fields, slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false))
		}
		blocks = append(blocks, slacklib.NewSectionBlock(nil, fields, nil))
	}

	if n.Footer != "" {
		blocks = append(blocks, slacklib.NewContextBlock("",
			slacklib.NewTextBlockObject(slacklib.MarkdownType, n.Footer, false, false),
		))
	}

	return blocks
}
