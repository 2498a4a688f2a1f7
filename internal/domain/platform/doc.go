/*
Package platform turns engagement pages into metric rows.

Each supported platform registers one extractor. Browser-driven
platforms (x, youtube, stockbit, instagram, linkedin) describe the page
visit as a step plan and parse the captured document afterwards; tiktok
embeds its state as JSON in the static page and is fetched directly.

# Extractor Shapes

  - PageExtractor: Plan(url) produces browser steps, Parse(doc, url)
    reads the snapshot into a Metrics row.
  - FollowUpExtractor: extends PageExtractor with a second visit (the
    author profile) when the post page lacks follower counts.
  - StaticExtractor: Extract(ctx, url) does its own HTTP fetch.

# Output Contract

Every row carries the same thirteen keys regardless of platform.
Fields a platform cannot see are null, never omitted, so downstream
spreadsheets keep a stable column set. A failed link still produces a
row with Error set rather than dropping out of the batch.

# Rate Limiting

Gate spaces page loads per platform (token bucket plus jittered
minimum delay) and retries throttle-shaped failures with exponential
backoff. Budgets are deliberately conservative: tripping a platform's
anti-bot layer costs far more than the waiting does.
*/
package platform
