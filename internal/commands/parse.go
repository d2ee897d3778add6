package commands

import "strings"

// Command is the top-level command name on both surfaces.
const Command = "translate"

// ParsePrefix parses a prefix command such as "$translate set #general
// spanish". ok is false when content is not a translate command. The caller
// fills in the invoking guild, channel and member.
func ParsePrefix(prefix, content string) (req Request, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Request{}, false
	}
	args := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(args) == 0 || strings.ToLower(args[0]) != Command {
		return Request{}, false
	}
	args = args[1:]
	if len(args) == 0 {
		return Request{Verb: VerbHelp}, true
	}
	req.Verb = strings.ToLower(args[0])
	args = args[1:]

	switch req.Verb {
	case VerbSet:
		// set [#channel] <language...>
		if len(args) > 0 {
			if id, isMention := ChannelMention(args[0]); isMention {
				req.TargetChannelID = id
				args = args[1:]
			}
		}
		req.Language = strings.Join(args, " ")
	case VerbRemove:
		if len(args) > 0 {
			req.TargetChannelID, _ = ChannelMention(args[0])
		}
	case VerbLogChannel:
		// logchannel [set|remove|disable] [#channel], or logchannel #channel
		if len(args) > 0 {
			if id, isMention := ChannelMention(args[0]); isMention {
				req.Action = "set"
				req.TargetChannelID = id
				break
			}
			req.Action = strings.ToLower(args[0])
			if len(args) > 1 {
				req.TargetChannelID, _ = ChannelMention(args[1])
			}
		}
	case VerbOCR:
		// ocr enable|disable [#channel|id]
		if len(args) > 0 {
			req.Action = strings.ToLower(args[0])
		}
		if len(args) > 1 {
			if id, isMention := ChannelMention(args[1]); isMention {
				req.TargetChannelID = id
			} else {
				req.TargetChannelID = args[1]
			}
		}
	case VerbModel, VerbOCRModel, VerbProvider:
		if len(args) > 0 {
			req.Name = args[0]
		}
	}
	return req, true
}

// ChannelMention extracts the id from a "<#id>" mention.
func ChannelMention(s string) (string, bool) {
	if !strings.HasPrefix(s, "<#") || !strings.HasSuffix(s, ">") || len(s) <= 3 {
		return "", false
	}
	return s[2 : len(s)-1], true
}
