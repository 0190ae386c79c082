package mcpserver

// PostConventions describes where each kind of post is stored and how its
// Markdown is laid out, for LLM consumers creating or editing posts.
const PostConventions = `# lifepress Post Conventions

Posts are Markdown files in a content repository. The path of a new post is
derived from its type, title, category and the current UTC date. Call the
` + "`" + `derive_path` + "`" + ` tool instead of building paths by hand.

## Types and paths

| type     | path                                      |
|----------|-------------------------------------------|
| plain    | notes/<slug>.md                           |
| til      | til/<category or "general">/<slug>.md     |
| journal  | daily-journal/YYYY/MM/DD-<slug or "entry">.md |
| blog     | dev-blog/YYYY-MM-DD-<slug or "post">.md   |
| 100days  | 100-days-of-code/day-NNN.md (day is required, zero-padded) |
| learning | learning-log/<slug or "topic">.md         |

A slug is the lower-cased title with whitespace runs replaced by ` + "`" + `-` + "`" + `
and every character outside ` + "`" + `[a-z0-9_-]` + "`" + ` removed.

## Saving

1. **New posts never overwrite.** ` + "`" + `save_post` + "`" + ` with mode ` + "`" + `new` + "`" + ` fails with a
   conflict when a file already exists at the derived path. Resolve it by
   editing the existing post, choosing another title, or abandoning the save.
2. **Edits carry the hash.** Read the post first with ` + "`" + `read_post` + "`" + ` and pass its
   ` + "`" + `sha` + "`" + ` as ` + "`" + `base_sha` + "`" + `. A post changed since it was read is refused.
3. Commit messages are ` + "`" + `Add <file>` + "`" + ` for new posts and ` + "`" + `Update <file>` + "`" + ` for edits.

## Content

- The first line starting with ` + "`" + `# ` + "`" + ` is the title shown in listings.
- Tags go on a line such as ` + "`" + `*Tags: #golang #concurrency*` + "`" + `. Tags start with a
  letter and are at least three characters. Only the first three are shown.
- Fenced ` + "`" + `mermaid` + "`" + ` code blocks are rendered as diagrams.
- Files are UTF-8 and end with a newline.

## Example

` + "```" + `markdown
# Closures capture variables, not values

*Tags: #golang #closures*

A closure created in a loop sees the loop variable's final value unless
the variable is per-iteration.
` + "```" + `
`
