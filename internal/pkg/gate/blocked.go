package gate

// blockedPage is served to blocked callers. It carries no request detail.
var blockedPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>Access blocked</title>
<style>
body{margin:0;min-height:100vh;display:flex;align-items:center;justify-content:center;background:#111827;color:#e5e7eb;font-family:system-ui,sans-serif}
main{text-align:center;padding:2rem}
h1{font-size:1.5rem;margin:0 0 .5rem}
p{margin:0;color:#9ca3af}
</style>
</head>
<body>
<main>
<h1>Access blocked</h1>
<p>Your network address is not allowed to access this site.</p>
</main>
</body>
</html>
`)
