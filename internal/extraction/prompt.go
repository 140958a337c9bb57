package extraction

// cardPrompt is the instruction sent with every business card image, whatever the backend
const cardPrompt = `Extract the following information from this business card image and return it as a JSON object:
- name
- job_title
- company
- email
- phone
- website
- address

If a field is missing, return null for that field. Do not include markdown formatting in the response, just the raw JSON string.`

// systemPrompt primes chat-style backends that accept a system message
const systemPrompt = "You read business cards and transcribe contact details exactly as printed. You answer with JSON only."
